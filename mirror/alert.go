package mirror

import (
	"context"
	"fmt"
)

// SetAlert registers staffUserID to be pinged the next time threadID's user
// sends an inbound message, consumed by deliverPendingAlerts. Re-requesting
// an alert that is already pending is a no-op.
func (m *Mirror) SetAlert(ctx context.Context, threadID string, staffUserID int64) error {
	t, err := m.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("mirror: lookup thread for alert: %w", err)
	}
	if t == nil {
		return &ErrMessageNotFound{Key: threadID}
	}

	if err := m.store.SetAlert(ctx, staffUserID, t.UserID); err != nil {
		return fmt.Errorf("mirror: set alert: %w", err)
	}

	if m.cfg.ShowSuccessOnReply {
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("<@%d> will be pinged on the next message from this user.", staffUserID))
	}
	return nil
}

// CancelAlert withdraws a staff member's pending alert for threadID's user,
// if one exists.
func (m *Mirror) CancelAlert(ctx context.Context, threadID string, staffUserID int64) error {
	t, err := m.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("mirror: lookup thread for alert cancel: %w", err)
	}
	if t == nil {
		return &ErrMessageNotFound{Key: threadID}
	}

	if err := m.store.CancelAlert(ctx, staffUserID, t.UserID); err != nil {
		return fmt.Errorf("mirror: cancel alert: %w", err)
	}

	if m.cfg.ShowSuccessOnReply {
		m.notifyChannel(ctx, t.ChannelID, fmt.Sprintf("<@%d>'s alert cancelled.", staffUserID))
	}
	return nil
}
