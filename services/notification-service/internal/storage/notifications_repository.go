package storage

import (
	"context"
	"time"

	"github.com/counselcare/counselbook/libs/db"
)

type Notification struct {
	ID            int64
	AppointmentID string
	RecipientID   string
	Channel       string
	Subject       string
	Body          string
	Status        string
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, recipient_id, channel, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.AppointmentID, n.RecipientID, n.Channel, n.Subject, n.Body, n.Status)
	return err
}

// ListByRecipient returns a recipient's notifications, newest first. Serves
// the in-app notification feed.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id::text, recipient_id::text, channel, subject, body, status, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.AppointmentID, &n.RecipientID, &n.Channel, &n.Subject, &n.Body, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
