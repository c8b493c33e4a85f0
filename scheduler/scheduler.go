// Package scheduler is the closure scheduler: upserting, cancelling,
// and firing deferred thread closures, crash-safe via rehydration from the
// store at startup.
//
// Modeled on channels.Dispatcher's entry-table-plus-lifecycle-context
// shape: a map keyed by thread_id holding a cancellable timer, guarded by
// its own mutex, parented to a lifecycle context independent of any single
// request.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/store"
	"github.com/gomodmail/modmail/thread"
)

type timerEntry struct {
	timer   *time.Timer
	closeAt time.Time
}

// Scheduler owns the in-memory timer table mirroring the scheduled_closures
// table, and the transitions between them.
type Scheduler struct {
	store    *store.Store
	adapter  platform.Adapter
	registry *thread.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*timerEntry

	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
}

// New constructs a Scheduler. Call Rehydrate once at startup to arm timers
// for any closures that were pending when the process last stopped.
func New(s *store.Store, adapter platform.Adapter, registry *thread.Registry, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:           s,
		adapter:         adapter,
		registry:        registry,
		logger:          logger,
		timers:          make(map[string]*timerEntry),
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
	}
}

// Shutdown stops every armed timer and cancels the scheduler's lifecycle
// context, so any fire() already in flight observes cancellation and
// returns without acting. Scheduled closures remain in the store for the
// next Rehydrate.
func (s *Scheduler) Shutdown() {
	s.lifecycleCancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.timers {
		e.timer.Stop()
	}
	s.timers = make(map[string]*timerEntry)
}

// Rehydrate reads every persisted ScheduledClosure and arms a timer for
// each. Rows whose close_at has already passed fire on the next scheduler
// tick, immediately.
func (s *Scheduler) Rehydrate(ctx context.Context) error {
	rows, err := s.store.GetAllScheduledClosures(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: rehydrate: %w", err)
	}
	for _, c := range rows {
		s.arm(c.ThreadID, c.CloseAt)
	}
	s.logger.Info("scheduler rehydrated", "count", len(rows))
	return nil
}

// QueueDepth reports how many closures are currently armed, for the health
// status endpoint.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Schedule upserts a ScheduledClosure for threadID and arms (or re-arms) its
// timer. Replacing an existing closure with remaining time left emits a
// "replacing" notice into the thread's staff channel.
func (s *Scheduler) Schedule(ctx context.Context, threadID string, delay time.Duration, silent bool, closedBy string) error {
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("scheduler: lookup thread: %w", err)
	}
	if t == nil {
		return &store.ErrNotFound{Entity: "thread", Key: threadID}
	}

	closeAt := time.Now().Add(delay)

	if existing := s.popTimer(threadID); existing != nil {
		if remaining := time.Until(existing.closeAt); remaining > 0 {
			s.notify(ctx, t.ChannelID, fmt.Sprintf("Replacing existing closure (remaining %s).", remaining.Round(time.Second)))
		}
		existing.timer.Stop()
	}

	c := &store.ScheduledClosure{
		ThreadID:            threadID,
		CloseAt:             closeAt,
		Silent:              silent,
		ClosedBy:            closedBy,
		CategoryID:          t.CategoryID,
		CategoryName:        t.CategoryName,
		RequiredPermissions: t.RequiredPermissions,
	}
	if err := s.store.UpsertScheduledClosure(ctx, c); err != nil {
		return fmt.Errorf("scheduler: upsert: %w", err)
	}

	s.arm(threadID, closeAt)
	return nil
}

// Cancel deletes any pending closure for threadID and stops its timer.
// Returns whether one existed.
func (s *Scheduler) Cancel(ctx context.Context, threadID string) (bool, error) {
	row, err := s.store.GetScheduledClosure(ctx, threadID)
	if err != nil {
		return false, fmt.Errorf("scheduler: lookup: %w", err)
	}
	existed := row != nil

	if err := s.store.CancelScheduledClosure(ctx, threadID); err != nil {
		return existed, fmt.Errorf("scheduler: cancel: %w", err)
	}
	if e := s.popTimer(threadID); e != nil {
		e.timer.Stop()
	}
	return existed, nil
}

// AutoCancelOnInbound is Cancel plus a dedicated "auto-cancelled" notice,
// called by the mirror's inbound pipeline whenever a user message arrives on
// a thread with a pending closure.
func (s *Scheduler) AutoCancelOnInbound(ctx context.Context, threadID string) (bool, error) {
	existed, err := s.Cancel(ctx, threadID)
	if err != nil || !existed {
		return existed, err
	}
	if t, lookErr := s.store.GetThread(ctx, threadID); lookErr == nil && t != nil {
		s.notify(ctx, t.ChannelID, "Scheduled closure auto-cancelled: new message received.")
	}
	return existed, nil
}

func (s *Scheduler) popTimer(threadID string) *timerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[threadID]
	if !ok {
		return nil
	}
	delete(s.timers, threadID)
	return e
}

func (s *Scheduler) arm(threadID string, closeAt time.Time) {
	delay := time.Until(closeAt)
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() { s.fire(threadID) })
	s.mu.Lock()
	s.timers[threadID] = &timerEntry{timer: timer, closeAt: closeAt}
	s.mu.Unlock()
}

// fire re-reads the scheduled_closures row before acting, guarding against a
// cancel (or replacement) race that happened between arming the timer and
// it firing.
func (s *Scheduler) fire(threadID string) {
	select {
	case <-s.lifecycleCtx.Done():
		return
	default:
	}
	ctx := s.lifecycleCtx

	row, err := s.store.GetScheduledClosure(ctx, threadID)
	if err != nil {
		s.logger.Error("scheduler: fire: read failed", "thread_id", threadID, "error", err)
		return
	}
	if row == nil {
		// Cancelled between arming and firing.
		s.mu.Lock()
		delete(s.timers, threadID)
		s.mu.Unlock()
		return
	}
	if row.CloseAt.After(time.Now()) {
		// Replaced with a later time after this timer was already queued to
		// run; re-arm for the new interval instead of closing early.
		s.arm(threadID, row.CloseAt)
		return
	}

	if err := s.registry.Close(ctx, threadID, row.ClosedBy, row.CategoryID, row.CategoryName, row.RequiredPermissions); err != nil {
		s.logger.Error("scheduler: close failed, closure row retained for retry", "thread_id", threadID, "error", err)
		return
	}

	if !row.Silent {
		if t, lookErr := s.store.GetThread(ctx, threadID); lookErr == nil && t != nil {
			if member, memErr := s.adapter.IsMember(ctx, t.UserID); memErr == nil && member {
				if _, err := s.adapter.SendDM(ctx, t.UserID, platform.Payload{Text: "This thread has been closed."}); err != nil {
					s.logger.Warn("scheduler: close notice dm failed", "thread_id", threadID, "error", err)
				}
			}
		}
	}

	if err := s.store.CancelScheduledClosure(ctx, threadID); err != nil {
		s.logger.Error("scheduler: failed to clear closure row after fire", "thread_id", threadID, "error", err)
	}
	s.mu.Lock()
	delete(s.timers, threadID)
	s.mu.Unlock()
}

func (s *Scheduler) notify(ctx context.Context, channelID, text string) {
	if _, err := s.adapter.SendChannel(ctx, channelID, platform.Payload{Text: text}); err != nil {
		s.logger.Warn("scheduler: notify failed", "channel_id", channelID, "error", err)
	}
}
