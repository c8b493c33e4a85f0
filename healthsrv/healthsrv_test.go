package healthsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gomodmail/modmail/dbopen"
	"github.com/gomodmail/modmail/platform/memtest"
	"github.com/gomodmail/modmail/recovery"
	"github.com/gomodmail/modmail/scheduler"
	"github.com/gomodmail/modmail/store"
	"github.com/gomodmail/modmail/thread"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(store.Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	s := &store.Store{DB: db}
	a := memtest.New()
	reg := thread.New(s, a, "cat-inbox", nil)
	sched := scheduler.New(s, a, reg, nil)
	t.Cleanup(sched.Shutdown)
	return New(s, sched), s
}

func TestHealthzReportsOpenThreadCount(t *testing.T) {
	srv, s := testServer(t)
	ctx := context.Background()

	th := &store.Thread{ID: "th-1", UserID: 1, UserName: "alice", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th); err != nil {
		t.Fatalf("create thread: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.OK {
		t.Error("expected OK=true")
	}
	if got.OpenThreadCount != 1 {
		t.Errorf("OpenThreadCount: got %d, want 1", got.OpenThreadCount)
	}
}

func TestHealthzIncludesLastRecoverySummary(t *testing.T) {
	srv, _ := testServer(t)
	srv.RecordRecoverySummary(recovery.Summary{ThreadsChecked: 3, MessagesRecovered: 2})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LastRecoverySummary == nil || got.LastRecoverySummary.MessagesRecovered != 2 {
		t.Fatalf("expected recovery summary echoed back, got %+v", got.LastRecoverySummary)
	}
}
