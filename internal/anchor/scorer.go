// Package anchor decides which stretches of an alignment are trustworthy
// evidence that a hypothesis slice corresponds to given reference sentences.
//
// The [Scorer] holds the acceptance policy; the [Extractor] walks an
// [align.Record] whose reference embeds sentence separators and emits one
// [Anchor] per separator-delimited hypothesis slice.
package anchor

import (
	"github.com/MrWong99/flexalign/pkg/align"
)

// Span is a half-open index range [Start, End).
type Span struct {
	Start, End int
}

// Len returns the number of positions covered by s.
func (s Span) Len() int { return s.End - s.Start }

// Candidate is one reference range found by [Scorer.LongestC] together with
// the density of Correct ops inside it.
type Candidate struct {
	Span    Span
	Density float64
}

// Scorer holds the thresholds of the anchor acceptance policy. The zero value
// accepts nothing; use [DefaultScorer].
type Scorer struct {
	// MinRatio accepts a slice whose Correct fraction is at least this value.
	MinRatio float64
	// MinCorrect accepts a slice with at least this many Correct ops.
	MinCorrect int
	// MinRun accepts a slice containing this many consecutive Correct ops.
	MinRun int

	// ScoreThreshold is the minimum Correct density of a grown range in
	// [Scorer.LongestC].
	ScoreThreshold float64
	// CountThreshold rejects long ranges whose longest Correct run is shorter.
	CountThreshold int
	// Beam is the number of best ranges kept by [Scorer.LongestC].
	Beam int
}

// DefaultScorer returns the empirically tuned thresholds.
func DefaultScorer() Scorer {
	return Scorer{
		MinRatio:       0.6,
		MinCorrect:     8,
		MinRun:         4,
		ScoreThreshold: 0.4,
		CountThreshold: 10,
		Beam:           3,
	}
}

// Satisfy reports whether ops is trustworthy evidence of a real match. An
// empty slice is never accepted.
func (s Scorer) Satisfy(ops []align.Op) bool {
	if len(ops) == 0 {
		return false
	}
	c := countOp(ops, align.Correct)
	if float64(c)/float64(len(ops)) >= s.MinRatio {
		return true
	}
	if c >= s.MinCorrect {
		return true
	}
	return LongestRun(ops, align.Correct) >= s.MinRun
}

// LongestRun returns the length of the longest run of consecutive op in ops.
func LongestRun(ops []align.Op, op align.Op) int {
	best, cur := 0, 0
	for _, o := range ops {
		if o != op {
			cur = 0
			continue
		}
		cur++
		best = max(best, cur)
	}
	return best
}

// LongestC relocates a drifted match inside the reference window. The window
// is split at every separator (isSep reports separator positions) into
// sentence segments; starting from each segment a run of consecutive
// segments is grown for as long as its aggregate Correct density stays at or
// above ScoreThreshold. The Beam densest runs are kept, and runs longer than
// CountThreshold whose longest Correct streak is shorter than CountThreshold
// are discarded.
//
// It returns the surviving candidates in descending density order and the
// smallest range covering all of them. ok is false when nothing survived.
func (s Scorer) LongestC(ops []align.Op, isSep func(int) bool, window Span) (cands []Candidate, bounds Span, ok bool) {
	segs := splitSegments(isSep, window)

	beam := make([]Candidate, 0, s.Beam+1)
	for i := 0; i < len(segs); {
		correct, best := 0, -1
		var density float64
		for j := i; j < len(segs); j++ {
			correct += countOp(ops[segs[j].Start:segs[j].End], align.Correct)
			d := float64(correct) / float64(segs[j].End-segs[i].Start)
			if d < s.ScoreThreshold {
				break
			}
			best, density = j, d
		}
		if best < 0 || density == 0 {
			i++
			continue
		}
		beam = insertBeam(beam, Candidate{
			Span:    Span{Start: segs[i].Start, End: segs[best].End},
			Density: density,
		}, s.Beam)
		i = best + 1
	}

	for _, c := range beam {
		if c.Span.Len() > s.CountThreshold && LongestRun(ops[c.Span.Start:c.Span.End], align.Correct) < s.CountThreshold {
			continue
		}
		if !ok {
			bounds, ok = c.Span, true
		}
		bounds.Start = min(bounds.Start, c.Span.Start)
		bounds.End = max(bounds.End, c.Span.End)
		cands = append(cands, c)
	}
	return cands, bounds, ok
}

// splitSegments cuts window at separator positions into non-empty sentence
// segments. Separator positions themselves belong to no segment. The tail
// after the last separator up to window.End is a segment of its own.
func splitSegments(isSep func(int) bool, window Span) []Span {
	var segs []Span
	cur := window.Start
	for i := window.Start; i < window.End; i++ {
		if !isSep(i) {
			continue
		}
		if i > cur {
			segs = append(segs, Span{Start: cur, End: i})
		}
		cur = i + 1
	}
	if window.End > cur {
		segs = append(segs, Span{Start: cur, End: window.End})
	}
	return segs
}

// insertBeam places c into the density-sorted beam, keeping at most width
// entries. Equal densities keep their discovery order.
func insertBeam(beam []Candidate, c Candidate, width int) []Candidate {
	if width <= 0 {
		return beam
	}
	pos := len(beam)
	for k, b := range beam {
		if c.Density > b.Density {
			pos = k
			break
		}
	}
	if pos >= width {
		return beam
	}
	beam = append(beam, Candidate{})
	copy(beam[pos+1:], beam[pos:])
	beam[pos] = c
	if len(beam) > width {
		beam = beam[:width]
	}
	return beam
}

func countOp(ops []align.Op, op align.Op) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}
