package inbox

import (
	"context"

	"github.com/physiobook/physiobook/libs/db"
)

// Repository deduplicates consumed events per consumer name, so two services
// reading the same topic do not shadow each other.
type Repository struct {
	q        db.Querier
	consumer string
}

func NewRepository(q db.Querier, consumer string) *Repository {
	return &Repository{q: q, consumer: consumer}
}

// Record reports false when eventID was already recorded.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inbox_events (consumer, event_id, event_type)
		VALUES ($1, $2, $3)
	`, r.consumer, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
