package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ScheduledClosure is a pending timed close for a thread, persisted so the
// closure scheduler can rehydrate its timer table across a restart.
type ScheduledClosure struct {
	ThreadID            string
	CloseAt             time.Time
	Silent              bool
	ClosedBy            string
	CategoryID          *string
	CategoryName        *string
	RequiredPermissions *string
}

// UpsertScheduledClosure creates or replaces the pending closure for a
// thread. Replacing (rather than erroring on conflict) is what lets a staff
// member re-run "close in 1h" to push a closure back.
func (s *Store) UpsertScheduledClosure(ctx context.Context, c *ScheduledClosure) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO scheduled_closures
			(thread_id, close_at, silent, closed_by, category_id, category_name, required_permissions)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(thread_id) DO UPDATE SET
			close_at = excluded.close_at,
			silent = excluded.silent,
			closed_by = excluded.closed_by,
			category_id = excluded.category_id,
			category_name = excluded.category_name,
			required_permissions = excluded.required_permissions`,
		c.ThreadID, c.CloseAt.UnixMilli(), boolInt(c.Silent), c.ClosedBy,
		c.CategoryID, c.CategoryName, c.RequiredPermissions,
	)
	if err != nil {
		return &ErrQueryFailed{Op: "upsert scheduled_closure", Cause: err}
	}
	return nil
}

// CancelScheduledClosure removes any pending closure for a thread. A no-op,
// not an error, if none was pending.
func (s *Store) CancelScheduledClosure(ctx context.Context, threadID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM scheduled_closures WHERE thread_id = ?`, threadID)
	if err != nil {
		return &ErrQueryFailed{Op: "cancel scheduled_closure", Cause: err}
	}
	return nil
}

// GetScheduledClosure returns the pending closure for a thread, or nil.
func (s *Store) GetScheduledClosure(ctx context.Context, threadID string) (*ScheduledClosure, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT thread_id, close_at, silent, closed_by, category_id, category_name, required_permissions
		FROM scheduled_closures WHERE thread_id = ?`, threadID)
	return scanScheduledClosure(row)
}

// GetAllScheduledClosures returns every pending closure, used once at
// startup to rehydrate the scheduler's timer table.
func (s *Store) GetAllScheduledClosures(ctx context.Context) ([]*ScheduledClosure, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT thread_id, close_at, silent, closed_by, category_id, category_name, required_permissions
		FROM scheduled_closures`)
	if err != nil {
		return nil, &ErrQueryFailed{Op: "list scheduled_closures", Cause: err}
	}
	defer rows.Close()

	var out []*ScheduledClosure
	for rows.Next() {
		c, err := scanScheduledClosureRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanScheduledClosure(row scanner) (*ScheduledClosure, error) {
	c, err := scanScheduledClosureRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func scanScheduledClosureRows(row scanner) (*ScheduledClosure, error) {
	var c ScheduledClosure
	var closeAt int64
	var silent int
	var categoryID, categoryName, requiredPermissions sql.NullString

	err := row.Scan(&c.ThreadID, &closeAt, &silent, &c.ClosedBy, &categoryID, &categoryName, &requiredPermissions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, &ErrQueryFailed{Op: "scan scheduled_closure", Cause: err}
	}

	c.CloseAt = time.UnixMilli(closeAt)
	c.Silent = silent != 0
	if categoryID.Valid {
		c.CategoryID = &categoryID.String
	}
	if categoryName.Valid {
		c.CategoryName = &categoryName.String
	}
	if requiredPermissions.Valid {
		c.RequiredPermissions = &requiredPermissions.String
	}
	return &c, nil
}
