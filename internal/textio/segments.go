package textio

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/MrWong99/flexalign/internal/timeline"
)

// SegmentsFormat selects the on-disk layout of a segment list.
type SegmentsFormat string

const (
	// FormatKaldi is one "<segment_id> <recording_id> <start> <end>" line per
	// segment.
	FormatKaldi SegmentsFormat = "kaldi"

	// FormatJSON is an object mapping segment ids to {"start", "end"}.
	FormatJSON SegmentsFormat = "json"
)

// IsValid reports whether f is a known format.
func (f SegmentsFormat) IsValid() bool {
	return f == FormatKaldi || f == FormatJSON
}

// ReadSegments parses a Kaldi segments file.
func ReadSegments(r io.Reader, source string) ([]timeline.Segment, error) {
	var segs []timeline.Segment
	err := scanFields(r, source, func(f []string) error {
		if len(f) != 4 {
			return malformed("segments line has %d fields, want 4", len(f))
		}
		start, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return malformed("start %q: %v", f[2], err)
		}
		end, err := strconv.ParseFloat(f[3], 64)
		if err != nil {
			return malformed("end %q: %v", f[3], err)
		}
		if end < start {
			return malformed("segment %s ends before it starts", f[0])
		}
		segs = append(segs, timeline.Segment{ID: f[0], RecordingID: f[1], Start: start, End: end})
		return nil
	})
	return segs, err
}

// ReadSegmentsJSON parses a JSON segment object for recordingID. Segments are
// returned ordered by start time, then id.
func ReadSegmentsJSON(r io.Reader, recordingID string) ([]timeline.Segment, error) {
	var raw map[string]timeline.Segment
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("textio: decode segments json: %w", err)
	}
	segs := make([]timeline.Segment, 0, len(raw))
	for id, s := range raw {
		s.ID = id
		s.RecordingID = recordingID
		segs = append(segs, s)
	}
	slices.SortFunc(segs, func(a, b timeline.Segment) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return segs, nil
}

// WriteSegments writes segs in the given format.
func WriteSegments(w io.Writer, segs []timeline.Segment, format SegmentsFormat) error {
	switch format {
	case FormatJSON:
		out := make(map[string]timeline.Segment, len(segs))
		for _, s := range segs {
			out[s.ID] = s
		}
		if err := json.NewEncoder(w).Encode(out); err != nil {
			return fmt.Errorf("textio: write segments json: %w", err)
		}
		return nil
	case FormatKaldi, "":
		bw := bufio.NewWriter(w)
		for _, s := range segs {
			fmt.Fprintf(bw, "%s %s %s %s\n", s.ID, s.RecordingID, formatSeconds(s.Start), formatSeconds(s.End))
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("textio: write segments: %w", err)
		}
		return nil
	}
	return fmt.Errorf("textio: unsupported segments format %q", format)
}

// formatSeconds prints a time with the shortest exact representation.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
