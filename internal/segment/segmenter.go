// Package segment places known reference sentences onto a flat hypothesis
// token stream and derives sentence timings from token-level times.
package segment

import (
	"slices"
)

// DefaultWildcard is the hypothesis token that matches any reference token.
const DefaultWildcard = "<unk>"

// Match is one hypothesis span [Start, End) that equals candidate sentence
// Sentence token for token.
type Match struct {
	Sentence   int
	Start, End int
}

// Result is the outcome of [Segmenter.Segment].
type Result struct {
	// Matches are disjoint, ordered by Start, with strictly increasing
	// Sentence indices.
	Matches []Match

	// Complete is true when the matches tile the whole hypothesis. Otherwise
	// Matches is the derivation that reached furthest into the stream.
	Complete bool
}

// cell is one chart entry: a span matched to a candidate, linked to the cell
// that ended where it starts (-1 for the stream start).
type cell struct {
	start, end int
	sentence   int
	pred       int
}

type cellKey struct {
	start, end, sentence int
}

// item is a work-queue entry: continue at pos after cell pred, trying only
// candidates with index >= minIdx.
type item struct {
	pos, pred, minIdx int
}

type itemKey struct {
	pos, minIdx int
}

// Segmenter is a chart-based span matcher. The zero value is not usable; use
// [New].
type Segmenter struct {
	wildcard string
}

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithWildcard sets the hypothesis token that matches any reference token.
// An empty string disables wildcard matching.
func WithWildcard(w string) Option {
	return func(s *Segmenter) { s.wildcard = w }
}

// New returns a [Segmenter] matching [DefaultWildcard] against any token.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{wildcard: DefaultWildcard}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Segment partitions hyp into consecutive spans that each equal one of the
// candidate sentences, consuming candidates in index order: after candidate k
// matched, only candidates k+1 and later may match the rest of the stream.
//
// The chart is explored breadth first from position 0, trying spans by
// increasing end and candidates by increasing index. The first derivation
// that reaches the end of hyp wins; ties between derivations are not scored.
// Without any complete derivation the one reaching furthest is returned with
// Complete set to false.
//
// Worst case is O(len(hyp)² · len(candidates)) token comparisons.
func (s *Segmenter) Segment(hyp []string, candidates [][]string) Result {
	if len(hyp) == 0 {
		return Result{Complete: true}
	}

	var (
		arena    []cell
		seen     = make(map[cellKey]int)
		queued   = map[itemKey]bool{{pos: 0, minIdx: 0}: true}
		queue    = []item{{pos: 0, pred: -1, minIdx: 0}}
		terminal = -1
		furthest = -1
	)
	for len(queue) > 0 && terminal < 0 {
		it := queue[0]
		queue = queue[1:]

		for end := it.pos + 1; end <= len(hyp) && terminal < 0; end++ {
			span := hyp[it.pos:end]
			for idx := it.minIdx; idx < len(candidates); idx++ {
				if !s.equal(span, candidates[idx]) {
					continue
				}
				key := cellKey{start: it.pos, end: end, sentence: idx}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = len(arena)
				arena = append(arena, cell{start: it.pos, end: end, sentence: idx, pred: it.pred})
				ci := len(arena) - 1

				if furthest < 0 || end > arena[furthest].end {
					furthest = ci
				}
				if end == len(hyp) {
					terminal = ci
					break
				}
				if next := (itemKey{pos: end, minIdx: idx + 1}); !queued[next] {
					queued[next] = true
					queue = append(queue, item{pos: end, pred: ci, minIdx: idx + 1})
				}
			}
		}
	}

	if terminal >= 0 {
		return Result{Matches: backtrack(arena, terminal), Complete: true}
	}
	if furthest >= 0 {
		return Result{Matches: backtrack(arena, furthest)}
	}
	return Result{}
}

// equal compares a hypothesis span with a reference sentence, letting the
// wildcard stand in for any reference token.
func (s *Segmenter) equal(span, sentence []string) bool {
	if len(span) != len(sentence) {
		return false
	}
	for i, t := range span {
		if t != sentence[i] && (s.wildcard == "" || t != s.wildcard) {
			return false
		}
	}
	return true
}

// backtrack follows predecessor indices from cell ci to the stream start.
func backtrack(arena []cell, ci int) []Match {
	var out []Match
	for ; ci >= 0; ci = arena[ci].pred {
		c := arena[ci]
		out = append(out, Match{Sentence: c.sentence, Start: c.start, End: c.end})
	}
	slices.Reverse(out)
	return out
}
