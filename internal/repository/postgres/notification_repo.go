package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gatekeeper/internal/model"
)

// NotificationRepo persists announcements into the notifications inbox.
// It satisfies notify.Sink.
type NotificationRepo struct{ db *DB }

// NewNotificationRepo constructs a notification repository.
func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Deliver inserts the notification as an unread inbox row.
func (r *NotificationRepo) Deliver(ctx context.Context, n model.Notification) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	const q = `
INSERT INTO notifications (id, recipient_id, title, body, category)
VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.Pool.Exec(ctx, q, id, n.RecipientID, n.Title, n.Body, n.Category)
	return err
}
