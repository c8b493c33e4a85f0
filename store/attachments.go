package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// HashAttachment returns the blake2b-256 hex digest of an attachment's
// bytes, used to recognise a re-sent attachment across an edit/resend cycle
// without keeping the bytes themselves.
func HashAttachment(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SeenAttachment reports whether this thread has already recorded an
// attachment with this hash, and records it if not, atomically.
func (s *Store) SeenAttachment(ctx context.Context, threadID, hash string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO attachment_hashes (hash, thread_id, first_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(thread_id, hash) DO NOTHING`,
		hash, threadID, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, &ErrQueryFailed{Op: "record attachment_hash", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &ErrQueryFailed{Op: "attachment_hash rows affected", Cause: err}
	}
	return n == 0, nil
}

// FirstSeenAttachment returns when a hash was first recorded for a thread,
// or the zero time if it was never seen.
func (s *Store) FirstSeenAttachment(ctx context.Context, threadID, hash string) (time.Time, error) {
	var at int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT first_seen_at FROM attachment_hashes WHERE thread_id = ? AND hash = ?`,
		threadID, hash,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &ErrQueryFailed{Op: "read attachment_hash", Cause: err}
	}
	return time.UnixMilli(at), nil
}
