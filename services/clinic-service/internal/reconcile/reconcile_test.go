package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/physiobook/physiobook/services/clinic-service/internal/model"
)

func TestClassifySkipsCoveredResources(t *testing.T) {
	since := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	slots := []Orphan{{ID: "s-1", Label: "2030-01-01 09:00", Since: since}, {ID: "s-2", Label: "2030-01-01 10:00", Since: since}}
	codes := []Orphan{{ID: "c-1", Label: "1234", Since: since}, {ID: "c-2", Label: "5678", Since: since}}
	covered := map[string]struct{}{"s-2": {}, "c-1": {}}

	got := Classify(slots, codes, covered)
	if len(got) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(got))
	}
	if got[0].Kind != model.IncidentOrphanSlot || got[0].ResourceID != "s-1" || got[0].SlotID == nil || *got[0].SlotID != "s-1" {
		t.Fatalf("unexpected slot incident %+v", got[0])
	}
	if got[1].Kind != model.IncidentOrphanCode || got[1].ResourceType != "code" || got[1].CodeID == nil || *got[1].CodeID != "c-2" {
		t.Fatalf("unexpected code incident %+v", got[1])
	}
}

func TestClassifyNothingToFlag(t *testing.T) {
	if got := Classify(nil, nil, nil); len(got) != 0 {
		t.Fatalf("expected no incidents, got %d", len(got))
	}
}

type fakeFinder struct {
	cutoff time.Time
	slots  []Orphan
	err    error
}

func (f *fakeFinder) OrphanSlots(_ context.Context, cutoff time.Time) ([]Orphan, error) {
	f.cutoff = cutoff
	return f.slots, f.err
}

func (f *fakeFinder) OrphanCodes(context.Context, time.Time) ([]Orphan, error) { return nil, nil }

func (f *fakeFinder) OpenIncidentRefs(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

type fakeRecorder struct {
	flagged []model.Incident
}

func (r *fakeRecorder) Flag(_ context.Context, incidents []model.Incident) (int, error) {
	r.flagged = append(r.flagged, incidents...)
	return len(incidents), nil
}

func TestRunOnceUsesGracePeriod(t *testing.T) {
	finder := &fakeFinder{slots: []Orphan{{ID: "s-1"}}}
	recorder := &fakeRecorder{}
	w := NewWorker(finder, recorder, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{MinAge: 15 * time.Minute})
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	n, err := w.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 new incident, got %d (%v)", n, err)
	}
	if !finder.cutoff.Equal(now.Add(-15 * time.Minute)) {
		t.Fatalf("unexpected cutoff %s", finder.cutoff)
	}
	if len(recorder.flagged) != 1 || recorder.flagged[0].ResourceID != "s-1" {
		t.Fatalf("unexpected flagged %+v", recorder.flagged)
	}
}

func TestRunOnceFinderError(t *testing.T) {
	boom := errors.New("db down")
	recorder := &fakeRecorder{}
	w := NewWorker(&fakeFinder{err: boom}, recorder, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	if _, err := w.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped finder error, got %v", err)
	}
	if len(recorder.flagged) != 0 {
		t.Fatal("nothing should be recorded when the finder fails")
	}
}
