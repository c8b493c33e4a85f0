// Package mirror is the message-mirror pipeline: forwarding, numbering,
// editing, deleting, and reacting across the DM<->staff-channel boundary.
package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/scheduler"
	"github.com/gomodmail/modmail/store"
	"github.com/gomodmail/modmail/thread"
)

// NotifyUserLeft posts the staff-channel notice required when a thread's
// user leaves the community, per the event dispatcher's member-leave
// handling.
func (m *Mirror) NotifyUserLeft(ctx context.Context, t *store.Thread) {
	m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("%s has left the server.", t.UserName))
}

// Config carries the feature flags and display strings loaded from the
// relay's YAML config (see package config).
type Config struct {
	// AnonymousStaffName is shown to the user in place of the real operator
	// display name when a reply is sent with Anonymous=true.
	AnonymousStaffName string

	// MaxAttachmentSize rejects any single attachment larger than this many
	// bytes with a notice to the user. Zero means platform.MaxAttachmentSize.
	MaxAttachmentSize int64

	ShowSuccessOnReply bool
	ShowSuccessOnEdit  bool
	ShowLogOnEdit      bool
	ShowLogOnDelete    bool
	EnableLogs         bool
}

func (c Config) maxAttachmentSize() int64 {
	if c.MaxAttachmentSize > 0 {
		return c.MaxAttachmentSize
	}
	return platform.MaxAttachmentSize
}

func (c Config) anonymousName() string {
	if c.AnonymousStaffName != "" {
		return c.AnonymousStaffName
	}
	return "Staff"
}

// Mirror owns the content-mirroring pipelines. It is the only component
// that writes ThreadMessage rows.
type Mirror struct {
	store     *store.Store
	adapter   platform.Adapter
	registry  *thread.Registry
	scheduler *scheduler.Scheduler
	cfg       Config
	logger    *slog.Logger
}

// New constructs a Mirror.
func New(s *store.Store, adapter platform.Adapter, registry *thread.Registry, sched *scheduler.Scheduler, cfg Config, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:     s,
		adapter:   adapter,
		registry:  registry,
		scheduler: sched,
		cfg:       cfg,
		logger:    logger,
	}
}

// notifyChannel best-effort posts a plain-text system notice into a staff
// channel. Failures are logged, never propagated: a notice is advisory.
func (m *Mirror) notifyChannel(ctx context.Context, channelID, text string) {
	if _, err := m.adapter.SendChannel(ctx, channelID, platform.Payload{Text: text}); err != nil {
		m.logger.Warn("mirror: notice failed", "channel_id", channelID, "error", err)
	}
}

// notifyDM best-effort posts a plain-text system notice to a user's DM.
func (m *Mirror) notifyDM(ctx context.Context, userID int64, text string) {
	if _, err := m.adapter.SendDM(ctx, userID, platform.Payload{Text: text}); err != nil {
		m.logger.Warn("mirror: dm notice failed", "user_id", userID, "error", err)
	}
}

func messageNumberFooter(n int64) string {
	return fmt.Sprintf("Message #%d", n)
}
