package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modmail.yaml")
	fixture := `
platform:
  token: "abc123"
  community_id: "1"
  staff_id: "2"
  inbox_category_id: "3"
`
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "modmail.db" {
		t.Errorf("DBPath default: got %q", cfg.DBPath)
	}
	if cfg.Platform.CommandPrefix != "!" {
		t.Errorf("CommandPrefix default: got %q", cfg.Platform.CommandPrefix)
	}
	if cfg.Mirror.AnonymousStaffName != "Staff" {
		t.Errorf("AnonymousStaffName default: got %q", cfg.Mirror.AnonymousStaffName)
	}
	if cfg.Mirror.MaxAttachmentBytes != 8*1024*1024 {
		t.Errorf("MaxAttachmentBytes default: got %d", cfg.Mirror.MaxAttachmentBytes)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default: got %q", cfg.LogLevel)
	}
	if cfg.Platform.Token != "abc123" {
		t.Errorf("Token not preserved: got %q", cfg.Platform.Token)
	}
}

func TestLoadConfigFilePreservesExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modmail.yaml")
	fixture := `
db_path: "/var/lib/modmail/custom.db"
log_level: "debug"
mirror:
  anonymous_staff_name: "Support"
  max_attachment_bytes: 1024
`
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/var/lib/modmail/custom.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q", cfg.LogLevel)
	}
	if cfg.Mirror.AnonymousStaffName != "Support" {
		t.Errorf("AnonymousStaffName: got %q", cfg.Mirror.AnonymousStaffName)
	}
	if cfg.Mirror.MaxAttachmentBytes != 1024 {
		t.Errorf("MaxAttachmentBytes: got %d", cfg.Mirror.MaxAttachmentBytes)
	}
}

func TestLoadConfigFileMissingFileErrors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
