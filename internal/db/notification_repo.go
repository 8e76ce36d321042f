package db

import (
	"context"

	"clearskies/internal/types"
)

// NotificationRepository appends to the notification_log table. Rows are
// never updated or deleted.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Append inserts one delivery attempt. The caller sets ID; an empty ID lets
// the database generate one.
func (r *NotificationRepository) Append(ctx context.Context, n *types.NotificationRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_log
		 (id, hold_id, site_id, driver_name, phone_number, geotab_device_id,
		  recipient, message_id, message_type, sent_at, status, failure_reason)
		 VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6,
		         $7, $8, $9, COALESCE($10, NOW()), $11, $12)`,
		nilIfEmpty(n.ID),
		nilIfEmpty(n.HoldID),
		nilIfEmpty(n.SiteID),
		nilIfEmpty(n.DriverName),
		nilIfEmpty(n.PhoneNumber),
		nilIfEmpty(n.DeviceID),
		nilIfEmpty(n.Recipient),
		nilIfEmpty(n.MessageID),
		string(n.MessageType),
		nilIfZeroTime(n.SentAt),
		string(n.Status),
		nilIfEmpty(n.FailureReason),
	)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to append notification log", err,
			map[string]any{"hold_id": n.HoldID, "message_type": string(n.MessageType)})
	}
	return nil
}
