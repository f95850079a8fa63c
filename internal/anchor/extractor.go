package anchor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/flexalign/pkg/align"
)

// Anchor is the evidence that one hypothesis slice corresponds to a range of
// reference sentences.
type Anchor struct {
	// Window is the ordinal of the separator-delimited hypothesis slice.
	Window int

	// Lo and Hi are the inclusive sentence id range. Both are -1 for an
	// unmatched slice.
	Lo, Hi int

	// Hyp is the slice in alignment index space.
	Hyp Span

	// Ref is the resolved reference window in alignment index space.
	Ref Span

	// RefTokens is the reference text of Ref with separators and epsilon
	// placeholders removed.
	RefTokens []string

	// Ops are the alignment ops over Ref.
	Ops []align.Op

	// Clean is set when the slice matched without a widened search.
	Clean bool

	// Accepted is false when no trustworthy reference range was found.
	Accepted bool
}

// state of the extractor while walking the hypothesis stream.
type state int

const (
	stateBeforeStart state = iota
	stateScanning
	stateClean
	stateDrift
)

// Extractor turns an alignment between separator-delimited streams into
// anchors. It is safe for concurrent use; all state lives in [Extractor.Extract].
type Extractor struct {
	scorer    Scorer
	ratio     float64
	separator string
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithScorer overrides the scorer used for the widened search.
func WithScorer(s Scorer) Option {
	return func(e *Extractor) { e.scorer = s }
}

// WithRatioThreshold sets the Correct fraction above which a hypothesis slice
// is taken as a clean match. Default: 0.2.
func WithRatioThreshold(r float64) Option {
	return func(e *Extractor) { e.ratio = r }
}

// WithSeparator sets the sentence separator token. Default: [DefaultSeparator].
func WithSeparator(sep string) Option {
	return func(e *Extractor) { e.separator = sep }
}

// NewExtractor returns an [Extractor] with default thresholds.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		scorer:    DefaultScorer(),
		ratio:     0.2,
		separator: DefaultSeparator,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract walks the hypothesis side of rec and emits one [Anchor] for every
// slice closed by a hypothesis separator. Tokens before the first hypothesis
// separator are ignored, since the leading separators of both streams are
// not always aligned to each other.
//
// For each slice the reference window is widened outward to the nearest
// enclosing separators. When the previous slice matched cleanly, the window
// starts after the previous match instead, so reference text is never
// consumed twice. Slices whose Correct fraction falls below the ratio
// threshold are relocated with [Scorer.LongestC]; if that finds nothing the
// slice is reported unmatched.
func (e *Extractor) Extract(rec align.Record) []Anchor {
	seps := NumberSeparators(rec.Ref, e.separator)
	n := len(rec.Ref)

	var (
		anchors          []Anchor
		st               = stateBeforeStart
		hypStart, hypEnd int
		refEnd           int
	)
	for i, tok := range rec.Hyp {
		if tok != e.separator {
			continue
		}
		if st == stateBeforeStart {
			st = stateScanning
			continue
		}
		hypStart, hypEnd = hypEnd, i
		a := Anchor{Window: len(anchors), Lo: -1, Hi: -1, Hyp: Span{Start: hypStart, End: hypEnd}}

		refStart := hypStart
		if st == stateClean && refEnd > 0 && refEnd < hypEnd {
			refStart = refEnd + 1
		}
		refEnd = hypEnd
		for refStart > 0 && !seps.IsSep(refStart-1) {
			refStart--
		}
		if !seps.IsSep(refStart-1) && seps.First() >= refStart {
			refStart = seps.First() + 1
		}
		for refEnd < n && !seps.IsSep(refEnd) {
			refEnd++
		}
		if seps.Count() == 0 || refStart > refEnd {
			slog.Debug("anchor: no reference window", "record", rec.ID, "window", a.Window)
			st = stateDrift
			anchors = append(anchors, a)
			continue
		}

		slice := rec.Ops[hypStart:hypEnd]
		if float64(countOp(slice, align.Correct))/float64(len(slice)) >= e.ratio {
			st = stateClean
			a.Clean = true
		} else {
			st = stateDrift
			_, bounds, ok := e.scorer.LongestC(rec.Ops, seps.IsSep, Span{Start: refStart, End: refEnd})
			if !ok {
				slog.Debug("anchor: slice unmatched", "record", rec.ID, "window", a.Window,
					"hyp_start", hypStart, "hyp_end", hypEnd)
				anchors = append(anchors, a)
				continue
			}
			refStart, refEnd = bounds.Start, bounds.End
		}

		a.Ref = Span{Start: refStart, End: refEnd}
		a.Lo = seps.ID(refStart - 1)
		if refEnd < n {
			a.Hi = seps.ID(refEnd) - 1
		} else {
			a.Hi = seps.Count() - 1
		}
		a.RefTokens = cleanTokens(rec.Ref[refStart:refEnd], e.separator)
		a.Ops = rec.Ops[refStart:refEnd]
		a.Accepted = true
		anchors = append(anchors, a)
	}
	return anchors
}

// cleanTokens drops separators and epsilon placeholders.
func cleanTokens(tokens []string, sep string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != sep && t != align.Epsilon {
			out = append(out, t)
		}
	}
	return out
}

// WriteViews writes the two line-per-anchor views: the cleaned reference text
// to aligned and the "lo hi" sentence range to idx. Unmatched anchors are
// written as the epsilon placeholder in both views.
func WriteViews(aligned, idx io.Writer, anchors []Anchor) error {
	aw := bufio.NewWriter(aligned)
	iw := bufio.NewWriter(idx)
	for _, a := range anchors {
		if !a.Accepted {
			fmt.Fprintln(aw, align.Epsilon)
			fmt.Fprintln(iw, align.Epsilon)
			continue
		}
		fmt.Fprintln(aw, strings.Join(a.RefTokens, " "))
		fmt.Fprintf(iw, "%d %d\n", a.Lo, a.Hi)
	}
	if err := aw.Flush(); err != nil {
		return fmt.Errorf("anchor: write aligned view: %w", err)
	}
	if err := iw.Flush(); err != nil {
		return fmt.Errorf("anchor: write index view: %w", err)
	}
	return nil
}
