// Package reconcile flags slots and codes left consumed by a partial booking.
// It only records incidents; slots and codes are never modified.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/physiobook/physiobook/libs/otel"
	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// Orphan is a booked slot or used code that no registration references.
type Orphan struct {
	ID    string
	Label string
	Since time.Time
}

type Finder interface {
	// OrphanSlots returns slots booked before cutoff with no registration.
	OrphanSlots(ctx context.Context, cutoff time.Time) ([]Orphan, error)
	// OrphanCodes returns codes used before cutoff with no registration.
	OrphanCodes(ctx context.Context, cutoff time.Time) ([]Orphan, error)
	// OpenIncidentRefs returns slot and code ids already covered by open incidents.
	OpenIncidentRefs(ctx context.Context) (map[string]struct{}, error)
}

type Recorder interface {
	// Flag records incidents and returns how many were new.
	Flag(ctx context.Context, incidents []model.Incident) (int, error)
}

type Config struct {
	Interval time.Duration
	// MinAge keeps in-flight bookings from being flagged between steps.
	MinAge time.Duration
}

type Worker struct {
	finder   Finder
	recorder Recorder
	logger   *slog.Logger
	interval time.Duration
	minAge   time.Duration
	now      func() time.Time
}

func NewWorker(finder Finder, recorder Recorder, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 10 * time.Minute
	}
	return &Worker{
		finder:   finder,
		recorder: recorder,
		logger:   logger,
		interval: cfg.Interval,
		minAge:   cfg.MinAge,
		now:      time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("reconciliation pass failed", "err", err)
			}
		}
	}
}

// RunOnce performs a single pass and returns the number of new incidents.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ctx, span := otelx.Tracer("clinic").Start(ctx, "clinic.reconcile")
	defer span.End()

	cutoff := w.now().Add(-w.minAge)
	slots, err := w.finder.OrphanSlots(ctx, cutoff)
	if err != nil {
		otelx.RecordError(span, err)
		return 0, fmt.Errorf("find orphan slots: %w", err)
	}
	codes, err := w.finder.OrphanCodes(ctx, cutoff)
	if err != nil {
		otelx.RecordError(span, err)
		return 0, fmt.Errorf("find orphan codes: %w", err)
	}
	covered, err := w.finder.OpenIncidentRefs(ctx)
	if err != nil {
		otelx.RecordError(span, err)
		return 0, fmt.Errorf("load open incidents: %w", err)
	}

	incidents := Classify(slots, codes, covered)
	span.SetAttributes(
		attribute.Int("reconcile.orphan_slots", len(slots)),
		attribute.Int("reconcile.orphan_codes", len(codes)),
		attribute.Int("reconcile.candidates", len(incidents)),
	)
	if len(incidents) == 0 {
		return 0, nil
	}

	created, err := w.recorder.Flag(ctx, incidents)
	if err != nil {
		otelx.RecordError(span, err)
		return 0, fmt.Errorf("record incidents: %w", err)
	}
	if created > 0 {
		w.logger.Warn("reconciliation flagged orphans", "new_incidents", created, "candidates", len(incidents))
	}
	return created, nil
}

// Classify turns orphans into incidents, skipping resources an open incident
// already references.
func Classify(slots, codes []Orphan, covered map[string]struct{}) []model.Incident {
	var out []model.Incident
	for _, s := range slots {
		if _, ok := covered[s.ID]; ok {
			continue
		}
		id := s.ID
		out = append(out, model.Incident{
			Kind:         model.IncidentOrphanSlot,
			ResourceType: "slot",
			ResourceID:   s.ID,
			SlotID:       &id,
			Detail:       fmt.Sprintf("slot %s booked since %s without a registration", s.Label, s.Since.UTC().Format(time.RFC3339)),
		})
	}
	for _, c := range codes {
		if _, ok := covered[c.ID]; ok {
			continue
		}
		id := c.ID
		out = append(out, model.Incident{
			Kind:         model.IncidentOrphanCode,
			ResourceType: "code",
			ResourceID:   c.ID,
			CodeID:       &id,
			Detail:       fmt.Sprintf("code %s used since %s without a registration", c.Label, c.Since.UTC().Format(time.RFC3339)),
		})
	}
	return out
}
