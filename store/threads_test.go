package store

import (
	"context"
	"testing"

	"github.com/gomodmail/modmail/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func TestCreateThreadWithStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetThread(ctx, "th-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("get: got nil")
	}
	if got.Status != ThreadOpen {
		t.Errorf("Status: got %d, want ThreadOpen", got.Status)
	}
	if got.NextMessageNumber != 1 {
		t.Errorf("NextMessageNumber: got %d, want 1", got.NextMessageNumber)
	}

	st, err := s.GetThreadStatus(ctx, "th-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if st == nil || st.LastMessageBy != "user" {
		t.Errorf("status: got %+v, want last_message_by=user", st)
	}
}

func TestCreateThreadWithStatus_OneOpenPerUser(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th1 := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th1); err != nil {
		t.Fatalf("create first: %v", err)
	}

	th2 := &Thread{ID: "th-2", UserID: 100, UserName: "alice", ChannelID: "chan-2"}
	err := s.CreateThreadWithStatus(ctx, th2)
	if err == nil {
		t.Fatal("expected conflict creating a second open thread for the same user")
	}
	var conflict *ErrConflict
	if !asConflict(err, &conflict) {
		t.Errorf("expected ErrConflict, got %T: %v", err, err)
	}
}

func TestCreateThreadWithStatus_OneOpenPerChannel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th1 := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th1); err != nil {
		t.Fatalf("create first: %v", err)
	}

	th2 := &Thread{ID: "th-2", UserID: 200, UserName: "bob", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th2); err == nil {
		t.Fatal("expected conflict binding a second open thread to the same channel")
	}
}

func TestGetOpenThreadByUserAndChannel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th); err != nil {
		t.Fatalf("create: %v", err)
	}

	byUser, err := s.GetOpenThreadByUser(ctx, 100)
	if err != nil || byUser == nil || byUser.ID != "th-1" {
		t.Fatalf("GetOpenThreadByUser: got %+v, err %v", byUser, err)
	}

	byChan, err := s.GetOpenThreadByChannel(ctx, "chan-1")
	if err != nil || byChan == nil || byChan.ID != "th-1" {
		t.Fatalf("GetOpenThreadByChannel: got %+v, err %v", byChan, err)
	}

	if missing, err := s.GetOpenThreadByUser(ctx, 999); err != nil || missing != nil {
		t.Errorf("GetOpenThreadByUser(999): got %+v, err %v", missing, err)
	}
}

func TestCloseThreadIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	s.CreateThreadWithStatus(ctx, th)

	catID, catName := "cat-1", "support"
	if err := s.CloseThread(ctx, "th-1", "staff-1", &catID, &catName, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ := s.GetThread(ctx, "th-1")
	if got.Status != ThreadClosed {
		t.Fatalf("Status: got %d, want ThreadClosed", got.Status)
	}
	firstClosedAt := got.ClosedAt

	// Closing again must not move closed_at.
	if err := s.CloseThread(ctx, "th-1", "staff-2", &catID, &catName, nil); err != nil {
		t.Fatalf("close again: %v", err)
	}
	got2, _ := s.GetThread(ctx, "th-1")
	if !got2.ClosedAt.Equal(*firstClosedAt) {
		t.Errorf("closed_at changed on second close: %v -> %v", firstClosedAt, got2.ClosedAt)
	}

	if got2.ChannelID != "chan-1" {
		t.Errorf("closed thread should keep its channel_id, got %q", got2.ChannelID)
	}
	th2 := &Thread{ID: "th-2", UserID: 200, UserName: "bob", ChannelID: "chan-1"}
	if err := s.CreateThreadWithStatus(ctx, th2); err != nil {
		t.Fatalf("reopening channel-1 after close should succeed: %v", err)
	}
}

func TestMoveThread(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	s.CreateThreadWithStatus(ctx, th)

	catID, catName := "cat-2", "escalations"
	if err := s.MoveThread(ctx, "th-1", &catID, &catName); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, _ := s.GetThread(ctx, "th-1")
	if got.CategoryID == nil || *got.CategoryID != "cat-2" {
		t.Errorf("CategoryID: got %v, want cat-2", got.CategoryID)
	}
	if got.Status != ThreadOpen {
		t.Error("MoveThread must not close the thread")
	}
}

func TestAllocateNextMessageNumber(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	s.CreateThreadWithStatus(ctx, th)

	for want := int64(1); want <= 3; want++ {
		got, err := s.AllocateNextMessageNumber(ctx, "th-1")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if got != want {
			t.Errorf("allocate #%d: got %d, want %d", want, got, want)
		}
	}
}

func TestMarkUserLeft(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := &Thread{ID: "th-1", UserID: 100, UserName: "alice", ChannelID: "chan-1"}
	s.CreateThreadWithStatus(ctx, th)

	if err := s.MarkUserLeft(ctx, "th-1"); err != nil {
		t.Fatalf("mark user left: %v", err)
	}
	got, _ := s.GetThread(ctx, "th-1")
	if !got.UserLeft {
		t.Error("UserLeft: got false, want true")
	}
}

func TestGetAllOpenThreads(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.CreateThreadWithStatus(ctx, &Thread{ID: "th-1", UserID: 1, UserName: "a", ChannelID: "c1"})
	s.CreateThreadWithStatus(ctx, &Thread{ID: "th-2", UserID: 2, UserName: "b", ChannelID: "c2"})
	s.CloseThread(ctx, "th-2", "staff-1", nil, nil, nil)

	open, err := s.GetAllOpenThreads(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].ID != "th-1" {
		t.Errorf("GetAllOpenThreads: got %+v, want only th-1", open)
	}
}

func asConflict(err error, out **ErrConflict) bool {
	c, ok := err.(*ErrConflict)
	if ok {
		*out = c
	}
	return ok
}
