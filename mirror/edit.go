package mirror

import (
	"context"
	"fmt"

	"github.com/gomodmail/modmail/platform"
)

// EditByNumber edits a staff reply identified by its visible message
// number: look up the numbered message, enforce the author-only policy,
// edit both twins, and persist the new content.
//
// Policy: only the original author may edit a message by number, even an
// anonymous one — anonymity hides the author from the user, not from the
// author-only edit check.
func (m *Mirror) EditByNumber(ctx context.Context, threadID string, number int64, callerID int64, newText string) error {
	if newText == "" {
		return &ErrEmptyMessage{}
	}

	msg, err := m.store.GetMessageByNumber(ctx, threadID, number)
	if err != nil {
		return fmt.Errorf("mirror: lookup message #%d: %w", number, err)
	}
	if msg == nil {
		return &ErrMessageNotFound{Key: fmt.Sprintf("thread=%s number=%d", threadID, number)}
	}
	if msg.UserID != callerID {
		return &ErrNotAuthor{MessageNumber: number}
	}

	before := msg.Content

	t, err := m.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("mirror: lookup thread for edit: %w", err)
	}
	if t == nil {
		return &ErrMessageNotFound{Key: threadID}
	}

	if msg.InboxMessageID != nil {
		ref := platform.MessageRef{Surface: platform.Channel, ChannelID: t.ChannelID, MessageID: *msg.InboxMessageID}
		if err := m.adapter.EditMessage(ctx, ref, platform.Payload{Text: newText, Embed: &platform.Embed{Footer: messageNumberFooter(number)}}); err != nil {
			return fmt.Errorf("mirror: edit staff echo: %w", err)
		}
	}
	if msg.DMMessageID != nil {
		ref := platform.MessageRef{Surface: platform.DM, UserID: t.UserID, MessageID: *msg.DMMessageID}
		if err := m.adapter.EditMessage(ctx, ref, platform.Payload{Text: newText}); err != nil {
			return &ErrDMAccessFailed{Cause: err}
		}
	}

	if err := m.store.UpdateMessageContent(ctx, msg.ID, newText); err != nil {
		return fmt.Errorf("mirror: persist edit: %w", err)
	}

	if m.cfg.EnableLogs && m.cfg.ShowLogOnEdit {
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("Message #%d edited.\nBefore: %s\nAfter: %s", number, before, newText))
	}
	return nil
}

// EditByDM propagates a user's edit of their own DM onto its staff-channel
// twin: the platform reports an edited DM by its platform message id; look
// up the twin by dm_message_id and edit the staff-side copy to match.
func (m *Mirror) EditByDM(ctx context.Context, dmMessageID, newText string) error {
	msg, err := m.store.GetMessageByDMID(ctx, dmMessageID)
	if err != nil {
		return fmt.Errorf("mirror: lookup message by dm id: %w", err)
	}
	if msg == nil {
		return &ErrMessageNotFound{Key: dmMessageID}
	}
	if msg.InboxMessageID == nil {
		return &ErrMessageNotFound{Key: dmMessageID}
	}

	t, err := m.store.GetThread(ctx, msg.ThreadID)
	if err != nil {
		return fmt.Errorf("mirror: lookup thread for dm edit: %w", err)
	}
	if t == nil {
		return &ErrMessageNotFound{Key: msg.ThreadID}
	}

	ref := platform.MessageRef{Surface: platform.Channel, ChannelID: t.ChannelID, MessageID: *msg.InboxMessageID}
	if err := m.adapter.EditMessage(ctx, ref, platform.Payload{Text: newText}); err != nil {
		return fmt.Errorf("mirror: edit staff twin: %w", err)
	}

	before := msg.Content
	if err := m.store.UpdateMessageContent(ctx, msg.ID, newText); err != nil {
		return fmt.Errorf("mirror: persist user edit: %w", err)
	}

	if m.cfg.EnableLogs && m.cfg.ShowLogOnEdit {
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("User edited their message.\nBefore: %s\nAfter: %s", before, newText))
	}
	return nil
}
