// Package thread is the thread registry: the single authority for
// opening, closing, moving, and looking up the one-open-thread-per-user
// relationship between an end user and a staff-side channel.
package thread

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gomodmail/modmail/idgen"
	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/store"
)

// Registry owns thread lifecycle decisions. Every open/close/move goes
// through here so the one-open-thread-per-user invariant has a single
// enforcement point.
type Registry struct {
	store    *store.Store
	adapter  platform.Adapter
	logger   *slog.Logger

	// userLocks is a per-user_id mutex map behind its own guarding mutex.
	// The map never shrinks during process lifetime; bounded by the number
	// of unique users that have ever interacted, which is acceptable.
	locksMu   sync.Mutex
	userLocks map[int64]*sync.Mutex

	// ParentCategory is where new staff channels are created.
	ParentCategory string
}

// New constructs a Registry.
func New(s *store.Store, adapter platform.Adapter, parentCategory string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:          s,
		adapter:        adapter,
		logger:         logger,
		userLocks:      make(map[int64]*sync.Mutex),
		ParentCategory: parentCategory,
	}
}

// lockFor returns the mutex for userID, creating it if needed.
func (r *Registry) lockFor(userID int64) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m, ok := r.userLocks[userID]
	if !ok {
		m = &sync.Mutex{}
		r.userLocks[userID] = m
	}
	return m
}

// WithUserLock runs fn while holding userID's per-user mutex, returning an
// owned handle's worth of exclusivity for the duration of fn. Callers that
// need to hold the lock across multiple registry/mirror operations (the
// inbound pipeline) should use this rather than calling OpenOrGet alone.
func (r *Registry) WithUserLock(userID int64, fn func() error) error {
	m := r.lockFor(userID)
	m.Lock()
	defer m.Unlock()
	return fn()
}

// OpenOrGet looks up the open thread for userID; if none exists, it creates
// a staff channel via the platform adapter and inserts the Thread/ThreadStatus
// rows atomically. Must be called while the caller holds userID's lock
// (normally via WithUserLock).
//
// If channel creation succeeds but the store insert loses a race to a
// concurrent opener, the freshly created channel is deleted and the
// winner's thread is returned instead.
func (r *Registry) OpenOrGet(ctx context.Context, userID int64, userName string) (*store.Thread, bool, error) {
	existing, err := r.store.GetOpenThreadByUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("thread: lookup open thread: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	channelID, err := r.adapter.CreateChannel(ctx, r.ParentCategory, channelName(userID, userName))
	if err != nil {
		return nil, false, fmt.Errorf("thread: create channel: %w", err)
	}

	t := &store.Thread{
		ID:       idgen.New(),
		UserID:   userID,
		UserName: userName,
		ChannelID: channelID,
	}
	if err := r.store.CreateThreadWithStatus(ctx, t); err != nil {
		var conflict *store.ErrConflict
		if asConflict(err, &conflict) {
			// Lost the race to a concurrent opener; the channel we just
			// made is now orphaned, clean it up and return the winner.
			if delErr := r.adapter.DeleteChannel(ctx, channelID); delErr != nil {
				r.logger.Error("thread: failed to delete orphaned channel after lost race",
					"channel", channelID, "user_id", userID, "error", delErr)
			}
			winner, getErr := r.store.GetOpenThreadByUser(ctx, userID)
			if getErr != nil {
				return nil, false, fmt.Errorf("thread: read winner after conflict: %w", getErr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("thread: insert thread: %w", err)
	}

	r.logger.Info("thread opened", "thread_id", t.ID, "user_id", userID, "channel_id", channelID)
	return t, true, nil
}

// Close marks a thread closed in the store, cancels any scheduled closure,
// and deletes the staff channel. Channel deletion is best-effort: a thread
// is logically closed in the database regardless of whether the channel
// delete succeeds, surfaced to operators as a "force close" situation if it
// fails.
func (r *Registry) Close(ctx context.Context, threadID, closedBy string, categoryID, categoryName, requiredPermissions *string) error {
	t, err := r.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("thread: lookup for close: %w", err)
	}
	if t == nil {
		return &store.ErrNotFound{Entity: "thread", Key: threadID}
	}

	if err := r.store.CloseThread(ctx, threadID, closedBy, categoryID, categoryName, requiredPermissions); err != nil {
		return fmt.Errorf("thread: close: %w", err)
	}
	if err := r.store.CancelScheduledClosure(ctx, threadID); err != nil {
		r.logger.Error("thread: failed to cancel scheduled closure on close", "thread_id", threadID, "error", err)
	}

	if err := r.adapter.DeleteChannel(ctx, t.ChannelID); err != nil {
		r.logger.Warn("thread: channel delete failed, thread closed with orphaned channel",
			"thread_id", threadID, "channel_id", t.ChannelID, "error", err)
	}
	return nil
}

// ForceClose is the operator escape hatch: it closes the thread the same
// way Close does, with no category snapshot or required permissions
// recorded. Neither Close nor ForceClose sends a DM to the user.
// Exposed as a distinct name so call sites read unambiguously.
func (r *Registry) ForceClose(ctx context.Context, threadID, closedBy string) error {
	return r.Close(ctx, threadID, closedBy, nil, nil, nil)
}

// Move updates a thread's category snapshot without closing it.
func (r *Registry) Move(ctx context.Context, threadID string, categoryID, categoryName *string) error {
	return r.store.MoveThread(ctx, threadID, categoryID, categoryName)
}

// MarkUserLeft flags a thread's user as having left the guild, per the
// dispatcher's member-leave handling.
func (r *Registry) MarkUserLeft(ctx context.Context, threadID string) error {
	return r.store.MarkUserLeft(ctx, threadID)
}

// LookupByChannel is a read-only lookup by staff channel id.
func (r *Registry) LookupByChannel(ctx context.Context, channelID string) (*store.Thread, error) {
	return r.store.GetOpenThreadByChannel(ctx, channelID)
}

// LookupByUser is a read-only lookup by user id.
func (r *Registry) LookupByUser(ctx context.Context, userID int64) (*store.Thread, error) {
	return r.store.GetOpenThreadByUser(ctx, userID)
}

func channelName(userID int64, userName string) string {
	return fmt.Sprintf("%s-%d", sanitizeChannelName(userName), userID)
}

func asConflict(err error, out **store.ErrConflict) bool {
	c, ok := err.(*store.ErrConflict)
	if ok {
		*out = c
	}
	return ok
}
