package mirror

import (
	"context"
	"testing"
)

func TestSetAlertThenDelivered(t *testing.T) {
	m, s, a, reg := testMirror(t)
	ctx := context.Background()
	a.SetMember(42, true)

	if err := reg.WithUserLock(42, func() error {
		return m.HandleInboundDM(ctx, InboundDM{UserID: 42, UserName: "alice", Text: "hi", DMMessageID: "dm-1"})
	}); err != nil {
		t.Fatalf("open thread: %v", err)
	}
	th, err := s.GetOpenThreadByUser(ctx, 42)
	if err != nil || th == nil {
		t.Fatalf("expected open thread, err=%v", err)
	}

	if err := m.SetAlert(ctx, th.ID, 7); err != nil {
		t.Fatalf("set alert: %v", err)
	}

	if err := reg.WithUserLock(42, func() error {
		return m.HandleInboundDM(ctx, InboundDM{UserID: 42, UserName: "alice", Text: "again", DMMessageID: "dm-2"})
	}); err != nil {
		t.Fatalf("second inbound: %v", err)
	}

	texts := a.ChannelMessageTexts(th.ChannelID)
	found := false
	for _, txt := range texts {
		if txt == "<@7> — alice sent a new message." {
			found = true
		}
	}
	if !found {
		t.Errorf("expected alert ping in channel messages, got %v", texts)
	}
}

func TestCancelAlertPreventsDelivery(t *testing.T) {
	m, s, a, reg := testMirror(t)
	ctx := context.Background()
	a.SetMember(42, true)

	if err := reg.WithUserLock(42, func() error {
		return m.HandleInboundDM(ctx, InboundDM{UserID: 42, UserName: "alice", Text: "hi", DMMessageID: "dm-1"})
	}); err != nil {
		t.Fatalf("open thread: %v", err)
	}
	th, err := s.GetOpenThreadByUser(ctx, 42)
	if err != nil || th == nil {
		t.Fatalf("expected open thread, err=%v", err)
	}

	if err := m.SetAlert(ctx, th.ID, 7); err != nil {
		t.Fatalf("set alert: %v", err)
	}
	if err := m.CancelAlert(ctx, th.ID, 7); err != nil {
		t.Fatalf("cancel alert: %v", err)
	}

	if err := reg.WithUserLock(42, func() error {
		return m.HandleInboundDM(ctx, InboundDM{UserID: 42, UserName: "alice", Text: "again", DMMessageID: "dm-2"})
	}); err != nil {
		t.Fatalf("second inbound: %v", err)
	}

	for _, txt := range a.ChannelMessageTexts(th.ChannelID) {
		if txt == "<@7> — alice sent a new message." {
			t.Fatalf("expected alert to be cancelled, but ping was delivered")
		}
	}
}
