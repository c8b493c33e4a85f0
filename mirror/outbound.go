package mirror

import (
	"context"
	"fmt"

	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/store"
)

// ReplyInput is an operator-authored reply headed for the user's DM.
type ReplyInput struct {
	ThreadID    string
	AuthorID    int64
	AuthorName  string
	Text        string
	RichHTML    string // optional snippet body, authored as HTML; overrides Text when set
	Attachments []platform.Attachment
	Anonymous   bool
}

// SendReply allocates a message number, echoes a staff reply into the
// staff channel with a "Message #N" footer, then send the DM twin. The
// ThreadMessage row is written once both attempts have run, even if the DM
// attempt failed: it always carries the staff echo's id, and the DM id only
// when the DM send succeeded. On DM failure the staff echo and the number
// allocation are kept and ErrDMAccessFailed is returned with the row.
func (m *Mirror) SendReply(ctx context.Context, in ReplyInput) (*store.ThreadMessage, error) {
	text := in.Text
	if in.RichHTML != "" {
		text = renderSnippet(in.RichHTML)
	}
	if text == "" && len(in.Attachments) == 0 {
		return nil, &ErrEmptyMessage{}
	}

	t, err := m.store.GetThread(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("mirror: lookup thread for reply: %w", err)
	}
	if t == nil {
		return nil, &store.ErrNotFound{Entity: "thread", Key: in.ThreadID}
	}

	isMember, err := m.adapter.IsMember(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("mirror: membership check: %w", err)
	}
	if !isMember {
		return nil, &ErrNotMember{UserID: t.UserID}
	}

	number, err := m.store.AllocateNextMessageNumber(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("mirror: allocate message number: %w", err)
	}

	echoPayload := platform.Payload{
		Text:        text,
		Attachments: in.Attachments,
		Embed:       &platform.Embed{Footer: messageNumberFooter(number)},
	}
	inboxID, err := m.adapter.SendChannel(ctx, t.ChannelID, echoPayload)
	if err != nil {
		return nil, fmt.Errorf("mirror: send staff echo: %w", err)
	}

	dmAuthorName := in.AuthorName
	if in.Anonymous {
		dmAuthorName = m.cfg.anonymousName()
	}
	dmPayload := platform.Payload{
		Text:        text,
		Attachments: in.Attachments,
		Embed:       &platform.Embed{Title: dmAuthorName},
	}

	var dmMessageID *string
	dmID, dmErr := m.adapter.SendDM(ctx, t.UserID, dmPayload)
	if dmErr != nil {
		m.logger.Warn("mirror: dm send failed, keeping staff echo", "thread_id", in.ThreadID, "user_id", t.UserID, "error", dmErr)
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("Message #%d: DM delivery failed (%v).", number, dmErr))
	} else {
		dmMessageID = strPtr(dmID)
	}

	msg := &store.ThreadMessage{
		ThreadID:       in.ThreadID,
		UserID:         in.AuthorID,
		UserName:       in.AuthorName,
		IsAnonymous:    in.Anonymous,
		DMMessageID:    dmMessageID,
		InboxMessageID: strPtr(inboxID),
		MessageNumber:  &number,
		Content:        text,
	}
	if _, err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("mirror: persist reply: %w", err)
	}

	if err := m.store.TouchLastMessage(ctx, in.ThreadID, "staff", msg.CreatedAt); err != nil {
		m.logger.Error("mirror: touch last message failed", "thread_id", in.ThreadID, "error", err)
	}

	if m.cfg.ShowSuccessOnReply {
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("Reply sent as message #%d.", number))
	}

	if dmErr != nil {
		return msg, &ErrDMAccessFailed{Cause: dmErr}
	}
	return msg, nil
}
