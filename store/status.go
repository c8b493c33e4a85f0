package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetThreadStatus returns the status row for a thread, or nil if absent.
func (s *Store) GetThreadStatus(ctx context.Context, threadID string) (*ThreadStatus, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT thread_id, channel_id, owner_id, taken_by, last_message_by, last_message_at
		FROM thread_status WHERE thread_id = ?`, threadID)
	return scanThreadStatus(row)
}

// TouchLastMessage updates last_message_by/last_message_at, called on every
// mirrored message so any "last activity" display stays current.
func (s *Store) TouchLastMessage(ctx context.Context, threadID, by string, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE thread_status SET last_message_by = ?, last_message_at = ? WHERE thread_id = ?`,
		by, at.UnixMilli(), threadID,
	)
	if err != nil {
		return &ErrQueryFailed{Op: "touch last message", Cause: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ErrNotFound{Entity: "thread_status", Key: threadID}
	}
	return nil
}

// SetTakenBy records which staff member has claimed a thread, or clears the
// claim when takenBy is nil.
func (s *Store) SetTakenBy(ctx context.Context, threadID string, takenBy *string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE thread_status SET taken_by = ? WHERE thread_id = ?`, takenBy, threadID)
	if err != nil {
		return &ErrQueryFailed{Op: "set taken_by", Cause: err}
	}
	return nil
}

// SetOwner records the staff member responsible for a thread.
func (s *Store) SetOwner(ctx context.Context, threadID string, ownerID *string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE thread_status SET owner_id = ? WHERE thread_id = ?`, ownerID, threadID)
	if err != nil {
		return &ErrQueryFailed{Op: "set owner_id", Cause: err}
	}
	return nil
}

func scanThreadStatus(row scanner) (*ThreadStatus, error) {
	var st ThreadStatus
	var ownerID, takenBy sql.NullString
	var lastAt int64

	err := row.Scan(&st.ThreadID, &st.ChannelID, &ownerID, &takenBy, &st.LastMessageBy, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ErrQueryFailed{Op: "scan thread_status", Cause: err}
	}

	st.LastMessageAt = time.UnixMilli(lastAt)
	if ownerID.Valid {
		st.OwnerID = &ownerID.String
	}
	if takenBy.Valid {
		st.TakenBy = &takenBy.String
	}
	return &st, nil
}
