package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/outbox"
)

const (
	EventNotificationSent   = "notification.sent.v1"
	EventNotificationFailed = "notification.failed.v1"

	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	EventID    string
	Channel    string
	Recipient  string
	Template   string
	Status     string
	Error      string
	ProviderID string
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

type sentPayload struct {
	NotificationID int64     `json:"notification_id"`
	EventID        string    `json:"event_id"`
	Channel        string    `json:"channel"`
	Template       string    `json:"template"`
	ProviderID     string    `json:"provider_id,omitempty"`
	ErrorReason    string    `json:"error_reason,omitempty"`
	At             time.Time `json:"at"`
}

// Record stores the attempt and queues notification.sent.v1 or
// notification.failed.v1 in the same transaction.
func (r *Repository) Record(ctx context.Context, n Notification) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var id int64
		var createdAt time.Time
		if err := tx.QueryRow(ctx, `
			INSERT INTO notifications (event_id, channel, recipient, template, status, error)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
			RETURNING id, created_at
		`, n.EventID, n.Channel, n.Recipient, n.Template, n.Status, n.Error).Scan(&id, &createdAt); err != nil {
			return err
		}

		eventType := EventNotificationSent
		if n.Status == StatusFailed {
			eventType = EventNotificationFailed
		}
		evt, err := outbox.NewEvent("notification", n.EventID, eventType, sentPayload{
			NotificationID: id,
			EventID:        n.EventID,
			Channel:        n.Channel,
			Template:       n.Template,
			ProviderID:     n.ProviderID,
			ErrorReason:    n.Error,
			At:             createdAt,
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}
