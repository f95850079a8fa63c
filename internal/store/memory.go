package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/flexalign/internal/timeline"
)

type memEntry struct {
	run Run
	tl  timeline.Timeline
}

// MemStore is an in-process [Store].
type MemStore struct {
	mu      sync.Mutex
	entries []memEntry
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

// SaveTimeline implements [Store].
func (m *MemStore) SaveTimeline(_ context.Context, runID string, tl timeline.Timeline, alignedRatio float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memEntry{
		run: Run{
			RunID:        runID,
			RecordingID:  tl.RecordingID,
			AlignedRatio: alignedRatio,
			Sentences:    len(tl.Sentences),
			CreatedAt:    m.now(),
		},
		tl: timeline.Timeline{RecordingID: tl.RecordingID, Sentences: slices.Clone(tl.Sentences)},
	}
	for i, old := range m.entries {
		if old.run.RunID == runID && old.run.RecordingID == tl.RecordingID {
			m.entries = slices.Delete(m.entries, i, i+1)
			break
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

// GetTimeline implements [Store].
func (m *MemStore) GetTimeline(_ context.Context, recordingID string) (*timeline.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.entries) - 1; i >= 0; i-- {
		if e := m.entries[i]; e.run.RecordingID == recordingID {
			tl := timeline.Timeline{RecordingID: e.tl.RecordingID, Sentences: slices.Clone(e.tl.Sentences)}
			return &tl, nil
		}
	}
	return nil, nil
}

// ListRuns implements [Store].
func (m *MemStore) ListRuns(_ context.Context) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]Run, len(m.entries))
	for i, e := range m.entries {
		runs[i] = e.run
	}
	return runs, nil
}
