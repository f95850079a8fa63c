// Package window cuts a recording into overlapping fixed-size windows for
// long-form decoding.
package window

import (
	"errors"
	"fmt"

	"github.com/MrWong99/flexalign/internal/timeline"
)

// ErrInvalidSize is returned when the window size or overlap cannot produce
// progress.
var ErrInvalidSize = errors.New("window: invalid size")

// ID returns the id of the i-th window of a recording.
func ID(recordingID string, i int) string {
	return fmt.Sprintf("%s_seg%04d", recordingID, i)
}

// Slide resegments one recording into windows of roughly size seconds where
// consecutive windows share overlap seconds.
//
// With useVAD the voice activity segments in segs (time-ordered) drive the cut:
// a window starts at the first segment's start and closes at the end of the
// first segment reaching start+size, or at the last segment. The next window
// starts overlap seconds before the previous end.
//
// Without useVAD only the end of the last segment is used, as the audio
// length, and [0, length) is cut into fixed windows.
func Slide(segs []timeline.Segment, size, overlap float64, useVAD bool) ([]timeline.Segment, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %g, overlap %g", ErrInvalidSize, size, overlap)
	}
	if len(segs) == 0 {
		return nil, nil
	}
	rec := segs[len(segs)-1].RecordingID

	var out []timeline.Segment
	emit := func(start, end float64) {
		out = append(out, timeline.Segment{ID: ID(rec, len(out)), RecordingID: rec, Start: start, End: end})
	}

	if useVAD {
		start := segs[0].Start
		for i, s := range segs {
			if s.End >= start+size || i == len(segs)-1 {
				emit(start, s.End)
				start = s.End - overlap
			}
		}
		return out, nil
	}

	length := segs[len(segs)-1].End
	start, end := 0.0, 0.0
	for end < length {
		end = min(start+size, length)
		emit(start, end)
		start = end - overlap
	}
	return out, nil
}
