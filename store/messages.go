package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ThreadMessage is a single mirrored message: either a user DM echoed into
// the staff channel, or an operator reply mirrored into the user's DM.
type ThreadMessage struct {
	ID              int64
	ThreadID        string
	UserID          int64
	UserName        string
	IsAnonymous     bool
	DMMessageID     *string
	InboxMessageID  *string
	MessageNumber   *int64
	CreatedAt       time.Time
	Content         string
}

// InsertMessage inserts a ThreadMessage and returns its surrogate id.
func (s *Store) InsertMessage(ctx context.Context, m *ThreadMessage) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO thread_messages
			(thread_id, user_id, user_name, is_anonymous, dm_message_id,
			 inbox_message_id, message_number, created_at, content)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ThreadID, m.UserID, m.UserName, boolInt(m.IsAnonymous),
		m.DMMessageID, m.InboxMessageID, m.MessageNumber,
		m.CreatedAt.UnixMilli(), m.Content,
	)
	if err != nil {
		return 0, &ErrQueryFailed{Op: "insert thread_message", Cause: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &ErrQueryFailed{Op: "last insert id", Cause: err}
	}
	m.ID = id
	return id, nil
}

// GetMessageByNumber looks up a ThreadMessage by (thread_id, message_number).
func (s *Store) GetMessageByNumber(ctx context.Context, threadID string, number int64) (*ThreadMessage, error) {
	row := s.DB.QueryRowContext(ctx, messageSelectColumns+
		`FROM thread_messages WHERE thread_id = ? AND message_number = ?`, threadID, number)
	return scanMessage(row)
}

// GetMessageByDMID looks up a ThreadMessage by its DM-side platform id.
func (s *Store) GetMessageByDMID(ctx context.Context, dmMessageID string) (*ThreadMessage, error) {
	row := s.DB.QueryRowContext(ctx, messageSelectColumns+
		`FROM thread_messages WHERE dm_message_id = ?`, dmMessageID)
	return scanMessage(row)
}

// GetMessageByInboxID looks up a ThreadMessage by its staff-channel-side
// platform id.
func (s *Store) GetMessageByInboxID(ctx context.Context, inboxMessageID string) (*ThreadMessage, error) {
	row := s.DB.QueryRowContext(ctx, messageSelectColumns+
		`FROM thread_messages WHERE inbox_message_id = ?`, inboxMessageID)
	return scanMessage(row)
}

// UpdateMessageContent updates a ThreadMessage's content (edit propagation).
func (s *Store) UpdateMessageContent(ctx context.Context, id int64, content string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE thread_messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return &ErrQueryFailed{Op: "update message content", Cause: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ErrNotFound{Entity: "thread_message", Key: "id"}
	}
	return nil
}

// DeleteMessage removes a ThreadMessage row and, if it carried a
// message_number, compacts the numbering of every message in the same
// thread numbered above it so numbers stay dense.
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	return withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var threadID string
		var number sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT thread_id, message_number FROM thread_messages WHERE id = ?`, id,
		).Scan(&threadID, &number)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &ErrNotFound{Entity: "thread_message", Key: "id"}
			}
			return &ErrQueryFailed{Op: "read message for delete", Cause: err}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM thread_messages WHERE id = ?`, id); err != nil {
			return &ErrQueryFailed{Op: "delete thread_message", Cause: err}
		}

		if number.Valid {
			if _, err := tx.ExecContext(ctx, `
				UPDATE thread_messages SET message_number = message_number - 1
				WHERE thread_id = ? AND message_number > ?`,
				threadID, number.Int64,
			); err != nil {
				return &ErrQueryFailed{Op: "compact message numbers", Cause: err}
			}
		}
		return nil
	})
}

// CompactMessageNumbers decrements by one every message_number greater than
// deletedNumber within the given thread. Exposed directly for callers that
// already know the thread and deleted number.
func (s *Store) CompactMessageNumbers(ctx context.Context, threadID string, deletedNumber int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE thread_messages SET message_number = message_number - 1
		WHERE thread_id = ? AND message_number > ?`,
		threadID, deletedNumber,
	)
	if err != nil {
		return &ErrQueryFailed{Op: "compact message numbers", Cause: err}
	}
	return nil
}

// LastDMMessageID returns the dm_message_id of the thread's most recent
// message that has one, ordered by created_at and then by row id. Platform
// ids are treated as opaque strings and never compared with each other.
func (s *Store) LastDMMessageID(ctx context.Context, threadID string) (string, error) {
	var id sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT dm_message_id FROM thread_messages
		WHERE thread_id = ? AND dm_message_id IS NOT NULL
		ORDER BY created_at DESC, id DESC LIMIT 1`, threadID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &ErrQueryFailed{Op: "last dm message id", Cause: err}
	}
	return id.String, nil
}

// LastInboxMessageID is the staff-channel analogue of LastDMMessageID, used
// by the recovery worker to reconcile staff-side history on restart.
func (s *Store) LastInboxMessageID(ctx context.Context, threadID string) (string, error) {
	var id sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT inbox_message_id FROM thread_messages
		WHERE thread_id = ? AND inbox_message_id IS NOT NULL
		ORDER BY created_at DESC, id DESC LIMIT 1`, threadID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &ErrQueryFailed{Op: "last inbox message id", Cause: err}
	}
	return id.String, nil
}

// HasDMMessage reports whether a message with this DM platform id has
// already been recorded, the idempotence check recovery replay relies on.
func (s *Store) HasDMMessage(ctx context.Context, dmMessageID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM thread_messages WHERE dm_message_id = ?`, dmMessageID,
	).Scan(&n)
	if err != nil {
		return false, &ErrQueryFailed{Op: "has dm message", Cause: err}
	}
	return n > 0, nil
}

const messageSelectColumns = `
	SELECT id, thread_id, user_id, user_name, is_anonymous, dm_message_id,
	       inbox_message_id, message_number, created_at, content
`

func scanMessage(row scanner) (*ThreadMessage, error) {
	var m ThreadMessage
	var isAnon int
	var dmID, inboxID sql.NullString
	var number sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&m.ID, &m.ThreadID, &m.UserID, &m.UserName, &isAnon, &dmID,
		&inboxID, &number, &createdAt, &m.Content,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &ErrQueryFailed{Op: "scan thread_message", Cause: err}
	}

	m.IsAnonymous = isAnon != 0
	m.CreatedAt = time.UnixMilli(createdAt)
	if dmID.Valid {
		m.DMMessageID = &dmID.String
	}
	if inboxID.Valid {
		m.InboxMessageID = &inboxID.String
	}
	if number.Valid {
		m.MessageNumber = &number.Int64
	}
	return &m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
