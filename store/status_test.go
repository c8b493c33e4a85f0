package store

import (
	"context"
	"testing"
	"time"
)

func TestTouchLastMessage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedThread(t, s, "th-1", 100)

	at := time.Now().Add(time.Minute)
	if err := s.TouchLastMessage(ctx, "th-1", "staff", at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := s.GetThreadStatus(ctx, "th-1")
	if err != nil || got == nil {
		t.Fatalf("get status: %+v, err %v", got, err)
	}
	if got.LastMessageBy != "staff" {
		t.Errorf("LastMessageBy: got %q, want staff", got.LastMessageBy)
	}
	if !got.LastMessageAt.Equal(at.Truncate(time.Millisecond)) {
		t.Errorf("LastMessageAt: got %v, want %v", got.LastMessageAt, at)
	}

	if err := s.TouchLastMessage(ctx, "nonexistent", "user", at); err == nil {
		t.Error("expected ErrNotFound touching a status row for a nonexistent thread")
	}
}

func TestSetTakenByAndOwner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedThread(t, s, "th-1", 100)

	staff := "staff-1"
	if err := s.SetTakenBy(ctx, "th-1", &staff); err != nil {
		t.Fatalf("set taken_by: %v", err)
	}
	if err := s.SetOwner(ctx, "th-1", &staff); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	got, _ := s.GetThreadStatus(ctx, "th-1")
	if got.TakenBy == nil || *got.TakenBy != "staff-1" {
		t.Errorf("TakenBy: got %v, want staff-1", got.TakenBy)
	}
	if got.OwnerID == nil || *got.OwnerID != "staff-1" {
		t.Errorf("OwnerID: got %v, want staff-1", got.OwnerID)
	}

	if err := s.SetTakenBy(ctx, "th-1", nil); err != nil {
		t.Fatalf("clear taken_by: %v", err)
	}
	got2, _ := s.GetThreadStatus(ctx, "th-1")
	if got2.TakenBy != nil {
		t.Errorf("TakenBy after clear: got %v, want nil", got2.TakenBy)
	}
}
