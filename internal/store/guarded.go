package store

import (
	"context"
	"fmt"

	"github.com/MrWong99/flexalign/internal/resilience"
	"github.com/MrWong99/flexalign/internal/timeline"
)

// Guarded routes every call of a [Store] through a circuit breaker, so a
// batch keeps aligning recordings quickly while the database is down.
type Guarded struct {
	store   Store
	breaker *resilience.Breaker
}

var _ Store = (*Guarded)(nil)

// NewGuarded wraps s with b.
func NewGuarded(s Store, b *resilience.Breaker) *Guarded {
	return &Guarded{store: s, breaker: b}
}

// SaveTimeline implements [Store].
func (g *Guarded) SaveTimeline(ctx context.Context, runID string, tl timeline.Timeline, alignedRatio float64) error {
	err := g.breaker.Do(func() error {
		return g.store.SaveTimeline(ctx, runID, tl, alignedRatio)
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", tl.RecordingID, err)
	}
	return nil
}

// GetTimeline implements [Store].
func (g *Guarded) GetTimeline(ctx context.Context, recordingID string) (*timeline.Timeline, error) {
	var tl *timeline.Timeline
	err := g.breaker.Do(func() (err error) {
		tl, err = g.store.GetTimeline(ctx, recordingID)
		return err
	})
	return tl, err
}

// ListRuns implements [Store].
func (g *Guarded) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := g.breaker.Do(func() (err error) {
		runs, err = g.store.ListRuns(ctx)
		return err
	})
	return runs, err
}
