// Package wer scores per-utterance alignment results and filters utterances
// that are unlikely to be correctly aligned training data.
package wer

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/flexalign/internal/anchor"
	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/pkg/align"
)

// Utterance is the WER of one scored record.
type Utterance struct {
	ID  string
	WER float64
}

// Compute returns the WER of every record in order. A record with an empty
// reference aborts with an error wrapping [align.ErrEmptyReference].
func Compute(recs []align.Record) ([]Utterance, error) {
	out := make([]Utterance, 0, len(recs))
	for _, r := range recs {
		w, err := align.WER(r.CSID)
		if err != nil {
			return nil, fmt.Errorf("wer: utterance %s: %w", r.ID, err)
		}
		out = append(out, Utterance{ID: r.ID, WER: w})
	}
	return out, nil
}

// Score writes "<id> <wer>" lines with four decimals for every record.
// Nothing is written when any record fails.
func Score(w io.Writer, recs []align.Record) error {
	utts, err := Compute(recs)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, u := range utts {
		fmt.Fprintf(bw, "%s %.4f\n", u.ID, u.WER)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("wer: write scores: %w", err)
	}
	return nil
}

// Filter decides whether an aligned utterance is kept.
type Filter struct {
	// Threshold is the largest WER kept.
	Threshold float64
	// MaxDuration is the longest utterance kept, in seconds.
	MaxDuration float64
}

// DefaultFilter keeps utterances up to WER 1 and 50 seconds.
func DefaultFilter() Filter {
	return Filter{Threshold: 1, MaxDuration: 50}
}

const (
	maxGap = 8

	absoluteMinC = 2
	shortRef     = 8
	shortMinC    = 3
	highWER      = 0.85
	longRef      = 20
	highWERMinC  = 8
)

// Valid reports whether rec, spanning duration seconds, is kept.
func (f Filter) Valid(rec align.Record, duration float64) bool {
	if len(rec.HypTokens()) == 0 {
		return false
	}
	w, err := align.WER(rec.CSID)
	if err != nil || w > f.Threshold {
		return false
	}
	c, refLen := rec.CSID.C, rec.CSID.RefLen()
	switch {
	case c <= absoluteMinC:
		return false
	case refLen < shortRef && c <= shortMinC:
		return false
	case w >= highWER && refLen >= longRef && c <= highWERMinC:
		return false
	}
	if anchor.LongestRun(rec.Ops, align.Insert) >= maxGap || anchor.LongestRun(rec.Ops, align.Delete) >= maxGap {
		return false
	}
	return duration <= f.MaxDuration
}

// Apply returns the segments whose record is valid, in input order. Segments
// without a record are logged and dropped.
func (f Filter) Apply(segs []timeline.Segment, recs []align.Record) []timeline.Segment {
	byID := make(map[string]align.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	var out []timeline.Segment
	for _, s := range segs {
		r, ok := byID[s.ID]
		if !ok {
			slog.Warn("wer: no alignment for segment", "segment", s.ID)
			continue
		}
		if f.Valid(r, s.Duration()) {
			out = append(out, s)
		}
	}
	return out
}
