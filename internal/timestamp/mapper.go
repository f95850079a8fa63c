// Package timestamp maps a finished sentence timeline onto voice activity
// segments, keeping only segments whose decoded text is trustworthy evidence
// for the reference text aligned to it.
package timestamp

import (
	"log/slog"
	"slices"

	"github.com/MrWong99/flexalign/internal/anchor"
	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/pkg/align"
)

// SegmentAnchor is one voice activity segment whose decoded text was found in
// the alignment.
type SegmentAnchor struct {
	Segment timeline.Segment

	// Hyp is the decoded text of the segment.
	Hyp []string

	// Ref and Ops are the aligned reference tokens and ops at the positions
	// of Hyp. Ref may contain epsilon placeholders.
	Ref []string
	Ops []align.Op

	// Accepted reports whether the scorer trusted the match.
	Accepted bool
}

// RefText returns the reference tokens without epsilon placeholders.
func (a SegmentAnchor) RefText() []string { return align.StripEpsilon(a.Ref) }

// Result is the outcome of mapping one recording.
type Result struct {
	RecordingID string

	// Anchors holds every matched segment in order, accepted or not.
	Anchors []SegmentAnchor

	// Unmatched lists segment ids whose decoded text could not be located or
	// timed.
	Unmatched []string

	// RefTokens is the reference length; AlignedTokens the number of
	// reference tokens covered by accepted anchors.
	RefTokens     int
	AlignedTokens int
}

// AlignedRatio is AlignedTokens / RefTokens, or 0 for an empty reference.
func (r Result) AlignedRatio() float64 {
	if r.RefTokens == 0 {
		return 0
	}
	return float64(r.AlignedTokens) / float64(r.RefTokens)
}

// Accepted returns the accepted anchors.
func (r Result) Accepted() []SegmentAnchor {
	var out []SegmentAnchor
	for _, a := range r.Anchors {
		if a.Accepted {
			out = append(out, a)
		}
	}
	return out
}

// Rejected counts anchors the scorer refused.
func (r Result) Rejected() int {
	return len(r.Anchors) - len(r.Accepted())
}

// Mapper intersects a timeline with voice activity segments.
type Mapper struct {
	scorer    anchor.Scorer
	separator string
}

// Option configures a [Mapper].
type Option func(*Mapper)

// WithScorer overrides the acceptance policy.
func WithScorer(s anchor.Scorer) Option {
	return func(m *Mapper) { m.scorer = s }
}

// WithSeparator sets the separator token skipped in the hypothesis.
func WithSeparator(sep string) Option {
	return func(m *Mapper) { m.separator = sep }
}

// New returns a [Mapper] with the default scorer.
func New(opts ...Option) *Mapper {
	m := &Mapper{scorer: anchor.DefaultScorer(), separator: anchor.DefaultSeparator}
	for _, o := range opts {
		o(m)
	}
	return m
}

// MapTimeline aligns the concatenated decoded texts against the timeline's
// tokens and maps the result onto segs.
func (m *Mapper) MapTimeline(tl timeline.Timeline, texts []timeline.Transcript, segs []timeline.Segment) Result {
	var hyp []string
	for _, t := range texts {
		hyp = append(hyp, t.Tokens...)
	}
	rec := align.Levenshtein(hyp, tl.Tokens()).Record(tl.RecordingID)
	return m.Map(rec, texts, segs)
}

// Map scans the hypothesis side of rec, skipping epsilon placeholders and
// separators, and accumulates tokens until they equal the decoded text of the
// current segment. The reference tokens and ops at those positions are then
// scored. When the accumulated tokens grow past the segment text without
// matching, the segment is recorded as unmatched and the scan restarts with
// the next one.
func (m *Mapper) Map(rec align.Record, texts []timeline.Transcript, segs []timeline.Segment) Result {
	res := Result{RecordingID: rec.ID, RefTokens: len(rec.RefTokens())}

	byID := make(map[string]timeline.Segment, len(segs))
	for _, s := range segs {
		byID[s.ID] = s
	}

	var pending []timeline.Transcript
	for _, t := range texts {
		if len(t.Tokens) > 0 {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return res
	}

	cur := 0
	var window []string
	var positions []int
	for i, tok := range rec.Hyp {
		if cur >= len(pending) {
			break
		}
		if tok == align.Epsilon || tok == m.separator {
			continue
		}
		window = append(window, tok)
		positions = append(positions, i)

		want := pending[cur].Tokens
		if len(window) < len(want) {
			continue
		}
		if slices.Equal(window, want) {
			res.addAnchor(m.scorer, rec, pending[cur], positions, byID)
		} else {
			slog.Warn("timestamp: segment text not found in alignment",
				"recording", rec.ID, "segment", pending[cur].ID)
			res.Unmatched = append(res.Unmatched, pending[cur].ID)
		}
		cur++
		window, positions = nil, nil
	}
	for ; cur < len(pending); cur++ {
		res.Unmatched = append(res.Unmatched, pending[cur].ID)
	}
	return res
}

func (r *Result) addAnchor(scorer anchor.Scorer, rec align.Record, t timeline.Transcript, positions []int, byID map[string]timeline.Segment) {
	seg, ok := byID[t.ID]
	if !ok {
		slog.Warn("timestamp: no segment times for decoded text", "recording", rec.ID, "segment", t.ID)
		r.Unmatched = append(r.Unmatched, t.ID)
		return
	}
	a := SegmentAnchor{
		Segment: seg,
		Hyp:     t.Tokens,
		Ref:     make([]string, len(positions)),
		Ops:     make([]align.Op, len(positions)),
	}
	for k, p := range positions {
		a.Ref[k] = rec.Ref[p]
		a.Ops[k] = rec.Ops[p]
	}
	a.Accepted = scorer.Satisfy(a.Ops)
	if a.Accepted {
		r.AlignedTokens += len(a.RefText())
	}
	r.Anchors = append(r.Anchors, a)
}
