package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gomodmail/modmail/dbopen"
)

// ThreadStatusValue is the lifecycle state of a Thread.
type ThreadStatusValue int

const (
	ThreadClosed ThreadStatusValue = 0
	ThreadOpen   ThreadStatusValue = 1
)

// Thread is a durable association between one end user and one staff-side
// channel, plus the bookkeeping needed to mirror and number messages.
type Thread struct {
	ID                  string
	UserID              int64
	UserName            string
	ChannelID           string
	Status              ThreadStatusValue
	CreatedAt           time.Time
	ClosedAt            *time.Time
	ClosedBy            *string
	CategoryID          *string
	CategoryName        *string
	RequiredPermissions *string
	UserLeft            bool
	NextMessageNumber   int64
}

// ThreadStatus is the one-to-one mutable status row for an open Thread.
type ThreadStatus struct {
	ThreadID      string
	ChannelID     string
	OwnerID       *string
	TakenBy       *string
	LastMessageBy string // "user" | "staff"
	LastMessageAt time.Time
}

// CreateThreadWithStatus inserts a Thread and its ThreadStatus row in a
// single transaction, so a reader never observes a Thread without a status.
func (s *Store) CreateThreadWithStatus(ctx context.Context, t *Thread) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.NextMessageNumber == 0 {
		t.NextMessageNumber = 1
	}

	return withTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO threads
				(id, user_id, user_name, channel_id, status, created_at,
				 next_message_number, user_left)
			VALUES (?,?,?,?,?,?,?,0)`,
			t.ID, t.UserID, t.UserName, t.ChannelID, int(ThreadOpen),
			t.CreatedAt.UnixMilli(), t.NextMessageNumber,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &ErrConflict{Entity: "threads", Detail: fmt.Sprintf("user %d already has an open thread", t.UserID)}
			}
			return &ErrQueryFailed{Op: "insert thread", Cause: err}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO thread_status (thread_id, channel_id, last_message_by, last_message_at)
			VALUES (?, ?, 'user', ?)`,
			t.ID, t.ChannelID, t.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return &ErrQueryFailed{Op: "insert thread_status", Cause: err}
		}
		return nil
	})
}

// GetOpenThreadByUser returns the open thread for user_id, or nil if none.
func (s *Store) GetOpenThreadByUser(ctx context.Context, userID int64) (*Thread, error) {
	row := s.DB.QueryRowContext(ctx, threadSelectColumns+`
		FROM threads WHERE user_id = ? AND status = ?`, userID, int(ThreadOpen))
	return scanThread(row)
}

// GetOpenThreadByChannel returns the open thread bound to channelID, or nil.
func (s *Store) GetOpenThreadByChannel(ctx context.Context, channelID string) (*Thread, error) {
	row := s.DB.QueryRowContext(ctx, threadSelectColumns+`
		FROM threads WHERE channel_id = ? AND status = ?`, channelID, int(ThreadOpen))
	return scanThread(row)
}

// GetThread returns a thread by id regardless of status, or nil.
func (s *Store) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	row := s.DB.QueryRowContext(ctx, threadSelectColumns+`FROM threads WHERE id = ?`, threadID)
	return scanThread(row)
}

// GetAllOpenThreads returns every thread with status=open. Used by the
// recovery worker at startup and by the health server on each request.
func (s *Store) GetAllOpenThreads(ctx context.Context) ([]*Thread, error) {
	rows, err := s.DB.QueryContext(ctx, threadSelectColumns+`FROM threads WHERE status = ?`, int(ThreadOpen))
	if err != nil {
		return nil, &ErrQueryFailed{Op: "list open threads", Cause: err}
	}
	defer rows.Close()

	var out []*Thread
	for rows.Next() {
		t, err := scanThreadRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CloseThread marks a thread closed, stamping closed_at/closed_by and the
// category snapshot. Idempotent: closing an already-closed thread succeeds
// without error and leaves the original closed_at untouched.
func (s *Store) CloseThread(ctx context.Context, threadID, closedBy string, categoryID, categoryName, requiredPermissions *string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE threads SET
			status = ?,
			closed_at = COALESCE(closed_at, ?),
			closed_by = ?,
			category_id = ?,
			category_name = ?,
			required_permissions = ?
		WHERE id = ?`,
		int(ThreadClosed), now, closedBy, categoryID, categoryName, requiredPermissions, threadID,
	)
	if err != nil {
		return &ErrQueryFailed{Op: "close thread", Cause: err}
	}
	return nil
}

// MoveThread updates a thread's category snapshot without closing it, so a
// subsequently scheduled closure reads the live category rather than a
// stale snapshot taken at schedule time.
func (s *Store) MoveThread(ctx context.Context, threadID string, categoryID, categoryName *string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE threads SET category_id = ?, category_name = ? WHERE id = ?`,
		categoryID, categoryName, threadID,
	)
	if err != nil {
		return &ErrQueryFailed{Op: "move thread", Cause: err}
	}
	return nil
}

// MarkUserLeft flags a thread's user as having left the guild.
func (s *Store) MarkUserLeft(ctx context.Context, threadID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE threads SET user_left = 1 WHERE id = ?`, threadID)
	if err != nil {
		return &ErrQueryFailed{Op: "mark user left", Cause: err}
	}
	return nil
}

// AllocateNextMessageNumber is the only mint point for operator message
// numbers. It reads next_message_number, returns it, and increments it by
// one, all inside a single serialisable transaction per thread_id.
func (s *Store) AllocateNextMessageNumber(ctx context.Context, threadID string) (int64, error) {
	var n int64
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT next_message_number FROM threads WHERE id = ?`, threadID)
		if err := row.Scan(&n); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &ErrNotFound{Entity: "thread", Key: threadID}
			}
			return &ErrQueryFailed{Op: "read next_message_number", Cause: err}
		}
		_, err := tx.ExecContext(ctx, `UPDATE threads SET next_message_number = next_message_number + 1 WHERE id = ?`, threadID)
		if err != nil {
			return &ErrQueryFailed{Op: "increment next_message_number", Cause: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

const threadSelectColumns = `
	SELECT id, user_id, user_name, channel_id, status, created_at,
	       closed_at, closed_by, category_id, category_name,
	       required_permissions, user_left, next_message_number
`

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (*Thread, error) {
	t, err := scanThreadRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func scanThreadRows(row scanner) (*Thread, error) {
	var t Thread
	var status int
	var createdAt int64
	var closedAt sql.NullInt64
	var closedBy, categoryID, categoryName, requiredPermissions sql.NullString
	var userLeft int

	err := row.Scan(
		&t.ID, &t.UserID, &t.UserName, &t.ChannelID, &status, &createdAt,
		&closedAt, &closedBy, &categoryID, &categoryName,
		&requiredPermissions, &userLeft, &t.NextMessageNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, &ErrQueryFailed{Op: "scan thread", Cause: err}
	}

	t.Status = ThreadStatusValue(status)
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UserLeft = userLeft != 0
	if closedAt.Valid {
		ts := time.UnixMilli(closedAt.Int64)
		t.ClosedAt = &ts
	}
	if closedBy.Valid {
		t.ClosedBy = &closedBy.String
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.String
	}
	if categoryName.Valid {
		t.CategoryName = &categoryName.String
	}
	if requiredPermissions.Valid {
		t.RequiredPermissions = &requiredPermissions.String
	}
	return &t, nil
}

// withTx runs fn in a transaction, retrying on SQLITE_BUSY the same way
// dbopen.RunTx does, so AllocateNextMessageNumber stays serialisable per
// thread even under concurrent writers on the same database file.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return dbopen.RunTx(ctx, db, fn)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
