package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/gomodmail/modmail/store"
)

func openTestThread(t *testing.T, m *Mirror, s *store.Store, userID int64, userName string) *store.Thread {
	t.Helper()
	ctx := context.Background()
	th := &store.Thread{ID: "th-" + userName, UserID: userID, UserName: userName, ChannelID: "chan-" + userName}
	if err := s.CreateThreadWithStatus(ctx, th); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return th
}

func TestSendReplyAllocatesSequentialNumbers(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(1, true)
	th := openTestThread(t, m, s, 1, "alice")

	msg1, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "hi"})
	if err != nil {
		t.Fatalf("reply 1: %v", err)
	}
	if *msg1.MessageNumber != 1 {
		t.Errorf("message 1 number: got %d, want 1", *msg1.MessageNumber)
	}

	msg2, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "again"})
	if err != nil {
		t.Fatalf("reply 2: %v", err)
	}
	if *msg2.MessageNumber != 2 {
		t.Errorf("message 2 number: got %d, want 2", *msg2.MessageNumber)
	}

	if msg1.DMMessageID == nil || msg1.InboxMessageID == nil {
		t.Error("expected both dm and inbox ids on a successful reply")
	}
}

func TestSendReplyKeepsRowWhenDMFails(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(2, true)
	th := openTestThread(t, m, s, 2, "carol")
	a.Failures["SendDM"] = errors.New("dm blocked")

	msg, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "hi"})
	var dmErr *ErrDMAccessFailed
	if !errors.As(err, &dmErr) {
		t.Fatalf("expected ErrDMAccessFailed, got %v", err)
	}
	if msg == nil {
		t.Fatal("expected the message row to still be returned")
	}
	if msg.InboxMessageID == nil {
		t.Error("expected inbox_message_id to be set")
	}
	if msg.DMMessageID != nil {
		t.Error("expected dm_message_id to be nil when the dm send failed")
	}
	if msg.MessageNumber == nil || *msg.MessageNumber != 1 {
		t.Error("expected message_number 1 to be preserved despite the dm failure")
	}
}

func TestSendReplyRejectsNonMember(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(3, false)
	th := openTestThread(t, m, s, 3, "dave")

	_, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "hi"})
	var notMember *ErrNotMember
	if !errors.As(err, &notMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestSendReplyAnonymousUsesAnonymousName(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(4, true)
	m.cfg.AnonymousStaffName = "Support Team"
	th := openTestThread(t, m, s, 4, "erin")

	msg, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "real-name", Text: "hi", Anonymous: true})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !msg.IsAnonymous {
		t.Error("expected IsAnonymous=true")
	}
	if msg.UserName != "real-name" {
		t.Error("expected the stored row to still record the real author for audit purposes")
	}
}

func TestSendReplyEmptyRejected(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(5, true)
	th := openTestThread(t, m, s, 5, "frank")

	_, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff"})
	var empty *ErrEmptyMessage
	if !errors.As(err, &empty) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}
