// Package store persists finished recording timelines together with the run
// that produced them.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/flexalign/internal/timeline"
)

// Run describes one stored timeline.
type Run struct {
	RunID        string    `json:"run_id"`
	RecordingID  string    `json:"recording_id"`
	AlignedRatio float64   `json:"aligned_ratio"`
	Sentences    int       `json:"sentences"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store saves and loads timelines.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveTimeline stores tl under runID, replacing an earlier save of the
	// same recording in the same run.
	SaveTimeline(ctx context.Context, runID string, tl timeline.Timeline, alignedRatio float64) error

	// GetTimeline returns the most recently saved timeline of a recording.
	// Returns (nil, nil) if not found.
	GetTimeline(ctx context.Context, recordingID string) (*timeline.Timeline, error)

	// ListRuns returns every stored timeline ordered by creation time.
	ListRuns(ctx context.Context) ([]Run, error)
}

// NewRunID returns a fresh batch run id.
func NewRunID() string { return uuid.NewString() }
