package mirror

import (
	"context"
	"fmt"

	"github.com/gomodmail/modmail/platform"
)

// twinRef resolves the platform message id that mirrors the given source
// message, on the opposite surface.
func (m *Mirror) twinRef(ctx context.Context, sourceMessageID string) (platform.MessageRef, error) {
	msg, err := m.store.GetMessageByDMID(ctx, sourceMessageID)
	if err != nil {
		return platform.MessageRef{}, fmt.Errorf("mirror: lookup by dm id: %w", err)
	}
	fromDM := msg != nil
	if msg == nil {
		msg, err = m.store.GetMessageByInboxID(ctx, sourceMessageID)
		if err != nil {
			return platform.MessageRef{}, fmt.Errorf("mirror: lookup by inbox id: %w", err)
		}
	}
	if msg == nil {
		return platform.MessageRef{}, &ErrMessageNotFound{Key: sourceMessageID}
	}

	t, err := m.store.GetThread(ctx, msg.ThreadID)
	if err != nil {
		return platform.MessageRef{}, fmt.Errorf("mirror: lookup thread for reaction: %w", err)
	}
	if t == nil {
		return platform.MessageRef{}, &ErrMessageNotFound{Key: msg.ThreadID}
	}

	if fromDM {
		if msg.InboxMessageID == nil {
			return platform.MessageRef{}, &ErrMessageNotFound{Key: sourceMessageID}
		}
		return platform.MessageRef{Surface: platform.Channel, ChannelID: t.ChannelID, MessageID: *msg.InboxMessageID}, nil
	}
	if msg.DMMessageID == nil {
		return platform.MessageRef{}, &ErrMessageNotFound{Key: sourceMessageID}
	}
	return platform.MessageRef{Surface: platform.DM, UserID: t.UserID, MessageID: *msg.DMMessageID}, nil
}

// ReactAdd mirrors a reaction add onto the twin message.
func (m *Mirror) ReactAdd(ctx context.Context, sourceMessageID, emoji string) error {
	ref, err := m.twinRef(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	return m.adapter.React(ctx, ref, emoji)
}

// ReactRemove mirrors a single reaction removal onto the twin message.
func (m *Mirror) ReactRemove(ctx context.Context, sourceMessageID, emoji string) error {
	ref, err := m.twinRef(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	return m.adapter.Unreact(ctx, ref, emoji)
}

// ReactRemoveAll mirrors a remove-all event: since the relay can only
// withdraw its own reactions wholesale, this removes the bot's reaction
// with the given emoji from the twin rather than attempting to clear every
// user's reaction.
func (m *Mirror) ReactRemoveAll(ctx context.Context, sourceMessageID, emoji string) error {
	ref, err := m.twinRef(ctx, sourceMessageID)
	if err != nil {
		return err
	}
	return m.adapter.Unreact(ctx, ref, emoji)
}
