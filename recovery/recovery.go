// Package recovery is the downtime-recovery worker: on startup, it
// reconciles DM and staff-channel traffic that arrived while the relay was
// offline by replaying it from the last known high-water mark.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gomodmail/modmail/mirror"
	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/store"
	"github.com/gomodmail/modmail/thread"
)

// Summary aggregates the result of one recovery run, suitable for posting
// into a designated logs channel.
type Summary struct {
	ThreadsChecked    int
	ThreadsRecovered  int // threads that had at least one message recovered
	MessagesRecovered int
	Failures          int
}

// Worker runs the recovery pass; main runs it once at startup, after the
// scheduler is rehydrated. It holds no long-lived state between runs.
type Worker struct {
	store    *store.Store
	adapter  platform.Adapter
	registry *thread.Registry
	mirror   *mirror.Mirror
	logger   *slog.Logger
}

// New constructs a recovery Worker.
func New(s *store.Store, adapter platform.Adapter, registry *thread.Registry, m *mirror.Mirror, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: s, adapter: adapter, registry: registry, mirror: m, logger: logger}
}

// Run reconciles every open thread and returns an aggregate Summary.
// Per-thread failures are logged and counted, never abort the others.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	threads, err := w.store.GetAllOpenThreads(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("recovery: list open threads: %w", err)
	}

	var sum Summary
	sum.ThreadsChecked = len(threads)

	for _, t := range threads {
		recovered, failed := w.recoverThread(ctx, t)
		if recovered > 0 {
			sum.ThreadsRecovered++
		}
		sum.MessagesRecovered += recovered
		sum.Failures += failed
	}

	w.logger.Info("recovery pass complete",
		"threads_checked", sum.ThreadsChecked,
		"threads_recovered", sum.ThreadsRecovered,
		"messages_recovered", sum.MessagesRecovered,
		"failures", sum.Failures,
	)
	return sum, nil
}

// recoverThread replays both missed DM traffic and missed staff-channel
// traffic for one thread, symmetrically. It never returns an error:
// failures are counted and logged so one broken thread cannot abort the
// rest of the pass.
func (w *Worker) recoverThread(ctx context.Context, t *store.Thread) (recovered, failed int) {
	dmRecovered, dmFailed := w.recoverDM(ctx, t)
	chRecovered, chFailed := w.recoverChannel(ctx, t)
	return dmRecovered + chRecovered, dmFailed + chFailed
}

func (w *Worker) recoverDM(ctx context.Context, t *store.Thread) (recovered, failed int) {
	since, err := w.store.LastDMMessageID(ctx, t.ID)
	if err != nil {
		w.logger.Error("recovery: read last dm message id failed", "thread_id", t.ID, "error", err)
		return 0, 1
	}

	history, err := w.adapter.FetchDMHistoryAfter(ctx, t.UserID, since)
	if err != nil {
		w.logger.Error("recovery: fetch dm history failed", "thread_id", t.ID, "user_id", t.UserID, "error", err)
		return 0, 1
	}

	for _, h := range history {
		if h.IsBot {
			continue
		}
		ok, err := w.replayDM(ctx, t, h)
		if err != nil {
			w.logger.Error("recovery: replay dm failed", "thread_id", t.ID, "message_id", h.MessageID, "error", err)
			failed++
			continue
		}
		if ok {
			recovered++
		}
	}
	return recovered, failed
}

// replayDM replays a single missed DM through the inbound pipeline, holding
// the sender's per-user lock for the duration so it cannot race a live
// inbound handler for the same user. Idempotent: a message whose platform
// id is already recorded as a dm_message_id is skipped, not re-mirrored.
func (w *Worker) replayDM(ctx context.Context, t *store.Thread, h platform.HistoryMessage) (recovered bool, err error) {
	err = w.registry.WithUserLock(t.UserID, func() error {
		seen, hasErr := w.store.HasDMMessage(ctx, h.MessageID)
		if hasErr != nil {
			return hasErr
		}
		if seen {
			return nil
		}

		handleErr := w.mirror.HandleInboundDM(ctx, mirror.InboundDM{
			UserID:      h.AuthorID,
			UserName:    h.AuthorName,
			Text:        h.Text,
			Attachments: h.Attachments,
			DMMessageID: h.MessageID,
		})
		if handleErr != nil {
			return handleErr
		}
		recovered = true
		return nil
	})
	return recovered, err
}

// recoverChannel replays staff-channel messages sent while offline that
// never got an inbox_message_id recorded — i.e. operator replies issued
// through a means other than this process (another relay instance, a
// manual platform message) that the mirror never saw. These are recorded
// as unnumbered ThreadMessages so a later "edit"/"delete" by platform id
// still resolves, without allocating a message number retroactively.
func (w *Worker) recoverChannel(ctx context.Context, t *store.Thread) (recovered, failed int) {
	since, err := w.store.LastInboxMessageID(ctx, t.ID)
	if err != nil {
		w.logger.Error("recovery: read last inbox message id failed", "thread_id", t.ID, "error", err)
		return 0, 1
	}

	history, err := w.adapter.FetchChannelHistoryAfter(ctx, t.ChannelID, since)
	if err != nil {
		w.logger.Error("recovery: fetch channel history failed", "thread_id", t.ID, "channel_id", t.ChannelID, "error", err)
		return 0, 1
	}

	for _, h := range history {
		if h.IsBot {
			continue
		}
		seen, err := w.store.GetMessageByInboxID(ctx, h.MessageID)
		if err != nil {
			w.logger.Error("recovery: lookup inbox message failed", "thread_id", t.ID, "message_id", h.MessageID, "error", err)
			failed++
			continue
		}
		if seen != nil {
			continue
		}

		msg := &store.ThreadMessage{
			ThreadID:       t.ID,
			UserID:         h.AuthorID,
			UserName:       h.AuthorName,
			InboxMessageID: strPtr(h.MessageID),
			Content:        h.Text,
		}
		if _, err := w.store.InsertMessage(ctx, msg); err != nil {
			w.logger.Error("recovery: persist missed channel message failed", "thread_id", t.ID, "error", err)
			failed++
			continue
		}
		recovered++
	}
	return recovered, failed
}

// PostSummary posts the recovery summary into a designated log channel.
// If logsChannelID is empty, the summary is logged only, not posted.
func (w *Worker) PostSummary(ctx context.Context, logsChannelID string, sum Summary) {
	text := fmt.Sprintf(
		"Recovery complete: %d recovered in %d thread(s), %d failure(s).",
		sum.MessagesRecovered, sum.ThreadsRecovered, sum.Failures,
	)
	if logsChannelID == "" {
		w.logger.Info("recovery: summary", "text", text)
		return
	}
	if _, err := w.adapter.SendChannel(ctx, logsChannelID, platform.Payload{Text: text}); err != nil {
		w.logger.Error("recovery: failed to post summary", "error", err)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
