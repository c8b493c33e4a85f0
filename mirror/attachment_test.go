package mirror

import (
	"context"
	"testing"

	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/store"
)

func TestInboundFlagsReuploadedAttachment(t *testing.T) {
	m, s, a, reg := testMirror(t)
	ctx := context.Background()
	a.SetMember(42, true)
	m.cfg.EnableLogs = true

	file := platform.Attachment{Filename: "report.pdf", Data: []byte("same bytes every time")}

	var threadID, channelID string
	err := reg.WithUserLock(42, func() error {
		if err := m.HandleInboundDM(ctx, InboundDM{
			UserID: 42, UserName: "alice", Text: "first",
			Attachments: []platform.Attachment{file}, DMMessageID: "dm-1",
		}); err != nil {
			return err
		}
		th, err := s.GetOpenThreadByUser(ctx, 42)
		if err != nil {
			return err
		}
		threadID = th.ID
		channelID = th.ChannelID
		return nil
	})
	if err != nil {
		t.Fatalf("first inbound: %v", err)
	}

	if err := reg.WithUserLock(42, func() error {
		return m.HandleInboundDM(ctx, InboundDM{
			UserID: 42, UserName: "alice", Text: "again",
			Attachments: []platform.Attachment{file}, DMMessageID: "dm-2",
		})
	}); err != nil {
		t.Fatalf("second inbound: %v", err)
	}

	hash := store.HashAttachment(file.Data)
	seenAt, err := s.FirstSeenAttachment(ctx, threadID, hash)
	if err != nil {
		t.Fatalf("first seen lookup: %v", err)
	}
	if seenAt.IsZero() {
		t.Fatal("expected the attachment hash to be recorded on first upload")
	}

	found := false
	for _, txt := range a.ChannelMessageTexts(channelID) {
		if txt == `Attachment "report.pdf" was already uploaded to this thread.` {
			found = true
		}
	}
	if !found {
		t.Error("expected a re-upload notice in the staff channel on the second upload")
	}
}
