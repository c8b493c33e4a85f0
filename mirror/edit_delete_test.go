package mirror

import (
	"context"
	"errors"
	"testing"
)

func TestEditByNumberUpdatesBothTwins(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(1, true)
	th := openTestThread(t, m, s, 1, "alice")

	msg, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "hi"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	if err := m.EditByNumber(ctx, th.ID, *msg.MessageNumber, 900, "hi!"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	got, err := s.GetMessageByNumber(ctx, th.ID, 1)
	if err != nil || got == nil {
		t.Fatalf("lookup after edit: %v", err)
	}
	if got.Content != "hi!" {
		t.Errorf("content: got %q, want hi!", got.Content)
	}
}

func TestEditByNumberRejectsNonAuthor(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(1, true)
	th := openTestThread(t, m, s, 1, "alice")

	msg, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "hi"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	err = m.EditByNumber(ctx, th.ID, *msg.MessageNumber, 901, "hijacked")
	var notAuthor *ErrNotAuthor
	if !errors.As(err, &notAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
}

func TestDeleteCompactsMessageNumbers(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(1, true)
	th := openTestThread(t, m, s, 1, "alice")

	msg1, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "one"})
	if err != nil {
		t.Fatalf("reply 1: %v", err)
	}
	msg2, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "two"})
	if err != nil {
		t.Fatalf("reply 2: %v", err)
	}

	if err := m.Delete(ctx, *msg1.InboxMessageID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.GetMessageByNumber(ctx, th.ID, 1)
	if err != nil || got == nil {
		t.Fatalf("expected message 2 to have been renumbered to 1, err=%v", err)
	}
	if got.Content != "two" {
		t.Errorf("content after compaction: got %q, want two", got.Content)
	}

	msg3, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "three"})
	if err != nil {
		t.Fatalf("reply 3: %v", err)
	}
	if *msg3.MessageNumber != 3 {
		t.Errorf("counter after compaction: got %d, want 3 (monotonic, not recycled)", *msg3.MessageNumber)
	}
	_ = msg2
}

func TestEditAfterDeleteFailsWithMessageNotFound(t *testing.T) {
	m, s, a, _ := testMirror(t)
	ctx := context.Background()
	a.SetMember(1, true)
	th := openTestThread(t, m, s, 1, "alice")

	msg, err := m.SendReply(ctx, ReplyInput{ThreadID: th.ID, AuthorID: 900, AuthorName: "staff", Text: "one"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if err := m.Delete(ctx, *msg.InboxMessageID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	err = m.EditByNumber(ctx, th.ID, *msg.MessageNumber, 900, "too late")
	var notFound *ErrMessageNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestEditByDMPropagatesToStaffTwin(t *testing.T) {
	m, s, a, reg := testMirror(t)
	ctx := context.Background()
	a.SetMember(8, true)

	if err := reg.WithUserLock(8, func() error {
		return m.HandleInboundDM(ctx, InboundDM{UserID: 8, UserName: "greg", Text: "hello", DMMessageID: "dm-9"})
	}); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if err := m.EditByDM(ctx, "dm-9", "hello (edited)"); err != nil {
		t.Fatalf("edit by dm: %v", err)
	}

	got, err := s.GetMessageByDMID(ctx, "dm-9")
	if err != nil || got == nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Content != "hello (edited)" {
		t.Errorf("content: got %q", got.Content)
	}
}

func TestDeleteByEitherSurfaceIDResolves(t *testing.T) {
	m, s, a, reg := testMirror(t)
	ctx := context.Background()
	a.SetMember(9, true)

	if err := reg.WithUserLock(9, func() error {
		return m.HandleInboundDM(ctx, InboundDM{UserID: 9, UserName: "hank", Text: "hi", DMMessageID: "dm-10"})
	}); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	if err := m.Delete(ctx, "dm-10"); err != nil {
		t.Fatalf("delete by dm id: %v", err)
	}

	if msg, err := s.GetMessageByDMID(ctx, "dm-10"); err != nil || msg != nil {
		t.Fatalf("expected message row gone, err=%v", err)
	}
}
