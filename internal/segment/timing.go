package segment

import (
	"errors"
	"fmt"
)

// ErrTimesMismatch is returned by [Time] when the token times do not cover
// the matched spans.
var ErrTimesMismatch = errors.New("segment: token times do not cover hypothesis")

// Times holds the token-level start times of one decoding window, relative to
// the window start, and the window's audio length.
type Times struct {
	Starts   []float64
	Duration float64
}

// Timed is a matched sentence with times in the recording.
type Timed struct {
	Sentence   int
	Start, End float64
}

// Time converts matches into sentence intervals. A sentence starts at the
// time of its first token and ends where the next matched sentence starts;
// the last one ends at the window duration. offset shifts every time from
// window to recording time.
func Time(matches []Match, times Times, offset float64) ([]Timed, error) {
	out := make([]Timed, 0, len(matches))
	for i, m := range matches {
		if m.Start < 0 || m.Start >= len(times.Starts) {
			return nil, fmt.Errorf("%w: span [%d,%d) with %d times", ErrTimesMismatch, m.Start, m.End, len(times.Starts))
		}
		end := times.Duration
		if i+1 < len(matches) {
			next := matches[i+1].Start
			if next >= len(times.Starts) {
				return nil, fmt.Errorf("%w: span start %d with %d times", ErrTimesMismatch, next, len(times.Starts))
			}
			end = times.Starts[next]
		}
		out = append(out, Timed{
			Sentence: m.Sentence,
			Start:    times.Starts[m.Start] + offset,
			End:      end + offset,
		})
	}
	return out, nil
}
