package mirror

import (
	"context"
	"fmt"

	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/store"
)

// InboundDM is a normalized user DM ready to enter the mirror pipeline.
type InboundDM struct {
	UserID      int64
	UserName    string
	Text        string
	Attachments []platform.Attachment
	DMMessageID string
}

// HandleInboundDM runs the full inbound pipeline for a single DM: membership
// check, attachment filtering, thread resolution, forwarding, persistence,
// status touch, scheduled-closure auto-cancel, and pending-alert delivery.
//
// Callers must hold the sender's per-user lock (normally via
// Registry.WithUserLock) before calling this — it performs the thread
// open-or-get under the assumption no concurrent inbound handler is racing
// it for the same user.
func (m *Mirror) HandleInboundDM(ctx context.Context, in InboundDM) error {
	isMember, err := m.adapter.IsMember(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("mirror: membership check: %w", err)
	}
	if !isMember {
		m.notifyDM(ctx, in.UserID, "You must be a member of the server to use modmail.")
		return nil
	}

	accepted, rejectedNames := m.filterAttachments(in.Attachments)
	for _, name := range rejectedNames {
		m.notifyDM(ctx, in.UserID, fmt.Sprintf("Attachment %q was not delivered: it exceeds the %d byte limit.", name, m.cfg.maxAttachmentSize()))
	}
	if len(in.Text) == 0 && len(accepted) == 0 {
		// Nothing left to forward (e.g. a single oversized attachment and no
		// text); the rejection notice above already told the user why.
		return nil
	}

	t, _, err := m.registry.OpenOrGet(ctx, in.UserID, in.UserName)
	if err != nil {
		return fmt.Errorf("mirror: open thread: %w", err)
	}

	m.flagReuploadedAttachments(ctx, t, accepted)

	payload := platform.Payload{Text: in.Text, Attachments: accepted}
	inboxID, err := m.adapter.SendChannel(ctx, t.ChannelID, payload)
	if err != nil {
		return fmt.Errorf("mirror: forward to staff channel: %w", err)
	}

	msg := &store.ThreadMessage{
		ThreadID:       t.ID,
		UserID:         in.UserID,
		UserName:       in.UserName,
		DMMessageID:    strPtr(in.DMMessageID),
		InboxMessageID: strPtr(inboxID),
		Content:        in.Text,
	}
	if _, err := m.store.InsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("mirror: persist inbound message: %w", err)
	}

	if err := m.store.TouchLastMessage(ctx, t.ID, "user", msg.CreatedAt); err != nil {
		m.logger.Error("mirror: touch last message failed", "thread_id", t.ID, "error", err)
	}

	if existed, err := m.scheduler.AutoCancelOnInbound(ctx, t.ID); err != nil {
		m.logger.Error("mirror: auto-cancel scheduled closure failed", "thread_id", t.ID, "error", err)
	} else if existed {
		m.logger.Info("mirror: scheduled closure auto-cancelled by inbound message", "thread_id", t.ID)
	}

	if err := m.deliverPendingAlerts(ctx, t); err != nil {
		m.logger.Error("mirror: deliver pending alerts failed", "thread_id", t.ID, "error", err)
	}

	return nil
}

// filterAttachments splits attachments into those within the size limit and
// the names of those rejected. The caller continues with whatever acceptable
// parts remain rather than bouncing the whole message.
func (m *Mirror) filterAttachments(atts []platform.Attachment) (accepted []platform.Attachment, rejected []string) {
	limit := m.cfg.maxAttachmentSize()
	for _, a := range atts {
		if int64(len(a.Data)) > limit {
			rejected = append(rejected, a.Filename)
			continue
		}
		accepted = append(accepted, a)
	}
	return accepted, rejected
}

// flagReuploadedAttachments hashes each accepted attachment and records it
// against the thread, noting in the staff channel any hash already seen on
// this thread (a user resending the same file across an edit/resend cycle).
// Best-effort: hashing failures never block the forward.
func (m *Mirror) flagReuploadedAttachments(ctx context.Context, t *store.Thread, atts []platform.Attachment) {
	for _, a := range atts {
		hash := store.HashAttachment(a.Data)
		seen, err := m.store.SeenAttachment(ctx, t.ID, hash)
		if err != nil {
			m.logger.Error("mirror: record attachment hash failed", "thread_id", t.ID, "error", err)
			continue
		}
		if seen && m.cfg.EnableLogs {
			m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("Attachment %q was already uploaded to this thread.", a.Filename))
		}
	}
}

// deliverPendingAlerts consumes any StaffAlert rows pending for this
// thread's user and pings each alerting operator in the staff channel.
func (m *Mirror) deliverPendingAlerts(ctx context.Context, t *store.Thread) error {
	staffIDs, err := m.store.ConsumePendingAlerts(ctx, t.UserID)
	if err != nil {
		return err
	}
	for _, staffID := range staffIDs {
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("<@%d> — %s sent a new message.", staffID, t.UserName))
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
