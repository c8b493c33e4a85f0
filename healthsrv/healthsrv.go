// Package healthsrv exposes a narrow liveness/status surface: a `/healthz`
// JSON probe an operator or orchestrator can poll. It is not an admin panel.
package healthsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gomodmail/modmail/recovery"
	"github.com/gomodmail/modmail/scheduler"
	"github.com/gomodmail/modmail/store"
)

// Status reports the relay's current operational snapshot.
type Status struct {
	OK                  bool              `json:"ok"`
	OpenThreadCount     int               `json:"open_thread_count"`
	SchedulerQueue      int               `json:"scheduler_queue_depth"`
	LastRecoverySummary *recovery.Summary `json:"last_recovery_summary,omitempty"`
}

// Server serves the health/status endpoints.
type Server struct {
	store     *store.Store
	scheduler *scheduler.Scheduler

	mu          sync.Mutex
	lastSummary *recovery.Summary
}

// New constructs a Server.
func New(s *store.Store, sched *scheduler.Scheduler) *Server {
	return &Server{store: s, scheduler: sched}
}

// RecordRecoverySummary stashes the most recent recovery pass result, shown
// on subsequent /healthz requests until the next pass completes.
func (srv *Server) RecordRecoverySummary(sum recovery.Summary) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.lastSummary = &sum
}

// Router returns a chi.Router serving /healthz.
func (srv *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", srv.handleHealthz)
	return r
}

func (srv *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := srv.status(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (srv *Server) status(ctx context.Context) Status {
	threads, err := srv.store.GetAllOpenThreads(ctx)
	if err != nil {
		return Status{OK: false}
	}

	srv.mu.Lock()
	lastSummary := srv.lastSummary
	srv.mu.Unlock()

	return Status{
		OK:                  true,
		OpenThreadCount:     len(threads),
		SchedulerQueue:      srv.scheduler.QueueDepth(),
		LastRecoverySummary: lastSummary,
	}
}
