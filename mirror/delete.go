package mirror

import (
	"context"
	"fmt"

	"github.com/gomodmail/modmail/platform"
)

// Delete handles a message deleted on either side of the mirror, identified
// by its platform id, and best-effort deletes the other twin. The id is
// tried first as a DM id, then as an inbox id, since the caller (the event
// dispatcher) does not know in advance which surface it came from.
func (m *Mirror) Delete(ctx context.Context, platformMessageID string) error {
	msg, err := m.store.GetMessageByDMID(ctx, platformMessageID)
	if err != nil {
		return fmt.Errorf("mirror: lookup by dm id: %w", err)
	}
	if msg == nil {
		msg, err = m.store.GetMessageByInboxID(ctx, platformMessageID)
		if err != nil {
			return fmt.Errorf("mirror: lookup by inbox id: %w", err)
		}
	}
	if msg == nil {
		return &ErrMessageNotFound{Key: platformMessageID}
	}

	t, err := m.store.GetThread(ctx, msg.ThreadID)
	if err != nil {
		return fmt.Errorf("mirror: lookup thread for delete: %w", err)
	}

	// Delete the twin message best-effort: the local record is removed
	// regardless of whether the platform call succeeds.
	if t != nil {
		if msg.DMMessageID != nil && *msg.DMMessageID != platformMessageID {
			if err := m.adapter.DeleteMessage(ctx, platform.MessageRef{Surface: platform.DM, UserID: t.UserID, MessageID: *msg.DMMessageID}); err != nil {
				m.logger.Warn("mirror: delete dm twin failed", "thread_id", msg.ThreadID, "error", err)
			}
		}
		if msg.InboxMessageID != nil && *msg.InboxMessageID != platformMessageID {
			if err := m.adapter.DeleteMessage(ctx, platform.MessageRef{Surface: platform.Channel, ChannelID: t.ChannelID, MessageID: *msg.InboxMessageID}); err != nil {
				m.logger.Warn("mirror: delete channel twin failed", "thread_id", msg.ThreadID, "error", err)
			}
		}
	}

	number := msg.MessageNumber
	if err := m.store.DeleteMessage(ctx, msg.ID); err != nil {
		return fmt.Errorf("mirror: delete message row: %w", err)
	}

	if t != nil && m.cfg.EnableLogs && m.cfg.ShowLogOnDelete {
		if number != nil {
			m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("Message #%d deleted.", *number))
		} else {
			m.notifyChannel(ctx, t.ChannelID, "A message was deleted.")
		}
	}
	return nil
}

// DeleteBatch fans a bulk-delete event out into independent single deletes
// running concurrently. Each delete runs in its own goroutine; errors are
// collected but one failure never blocks the others.
func (m *Mirror) DeleteBatch(ctx context.Context, platformMessageIDs []string) []error {
	errs := make([]error, len(platformMessageIDs))
	done := make(chan struct{}, len(platformMessageIDs))
	for i, id := range platformMessageIDs {
		go func(i int, id string) {
			errs[i] = m.Delete(ctx, id)
			done <- struct{}{}
		}(i, id)
	}
	for range platformMessageIDs {
		<-done
	}
	return errs
}
