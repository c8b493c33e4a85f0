package store

import (
	"context"
)

// StaffAlert is a standing request from a staff member to be pinged the
// next time thread_user_id sends a message. Consumed (marked used) the
// first time it fires, and cancellable before that.
type StaffAlert struct {
	ID           int64
	StaffUserID  int64
	ThreadUserID int64
	Used         bool
}

// SetAlert records a pending alert request. Re-requesting an alert that is
// already pending for the same (staff, user) pair is a no-op: the unique
// partial index on (staff_user_id, thread_user_id) WHERE used = 0 makes the
// insert a conflict, which we swallow rather than surface as an error.
func (s *Store) SetAlert(ctx context.Context, staffUserID, threadUserID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO staff_alerts (staff_user_id, thread_user_id, used)
		VALUES (?, ?, 0)`,
		staffUserID, threadUserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return &ErrQueryFailed{Op: "set staff_alert", Cause: err}
	}
	return nil
}

// CancelAlert removes a staff member's pending alert for a user, if any.
func (s *Store) CancelAlert(ctx context.Context, staffUserID, threadUserID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM staff_alerts WHERE staff_user_id = ? AND thread_user_id = ? AND used = 0`,
		staffUserID, threadUserID,
	)
	if err != nil {
		return &ErrQueryFailed{Op: "cancel staff_alert", Cause: err}
	}
	return nil
}

// ConsumePendingAlerts marks every pending alert for threadUserID as used
// and returns the staff_user_ids that should be pinged. Called once when a
// new message arrives from that user, so an alert fires at most once.
func (s *Store) ConsumePendingAlerts(ctx context.Context, threadUserID int64) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `
		UPDATE staff_alerts SET used = 1 WHERE thread_user_id = ? AND used = 0
		RETURNING staff_user_id`, threadUserID)
	if err != nil {
		return nil, &ErrQueryFailed{Op: "consume staff_alerts", Cause: err}
	}

	var staffIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, &ErrQueryFailed{Op: "scan staff_alert", Cause: err}
		}
		staffIDs = append(staffIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &ErrQueryFailed{Op: "iterate staff_alerts", Cause: err}
	}
	rows.Close()
	return staffIDs, nil
}
