// Package overlap stitches the sentence lists of consecutive, temporally
// overlapping decoding windows into one recording timeline.
package overlap

import (
	"math"
	"slices"

	"github.com/MrWong99/flexalign/internal/timeline"
)

// DefaultLookahead is the number of leading sentences of the later window
// searched for a textual anchor.
const DefaultLookahead = 5

// Resolver merges window sentence lists. The zero value uses
// [DefaultLookahead].
type Resolver struct {
	Lookahead int
}

// Resolve merges next, decoded from a later window, into prev. Neither input
// is modified; the result carries positional ids.
//
// When prev ends strictly before next starts the two are concatenated.
// Otherwise the first Lookahead sentences of next are searched for a textual
// anchor: scanning prev backward, a sentence with identical text whose end is
// further from the next sentence's start than a third of the shorter of the
// two durations. On the first anchor, prev is kept up to the anchor, the
// anchor is widened to end where its copy in next ends, and the rest of next
// follows. Without an anchor, prev is kept up to the last sentence that ended
// before next began and all of next is appended, so the later window wins.
func (r Resolver) Resolve(prev, next []timeline.Sentence) []timeline.Sentence {
	if len(next) == 0 {
		return renumbered(prev)
	}
	if len(prev) == 0 {
		return renumbered(next)
	}
	if prev[len(prev)-1].End < next[0].Start {
		return concat(prev, next)
	}

	lookahead := r.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	overlapPrev := 0
	for cn := range min(lookahead, len(next)) {
		n := next[cn]
		for i := len(prev) - 1; i >= 0; i-- {
			p := prev[i]
			if p.End < n.Start {
				if cn == 0 {
					overlapPrev = i + 1
				}
				break
			}
			if p.Text != n.Text || p.Start >= n.End {
				continue
			}
			if math.Abs(p.End-n.Start) > min(p.Duration(), n.Duration())/3 {
				widened := p
				widened.End = n.End
				out := make([]timeline.Sentence, 0, i+len(next)-cn)
				out = append(out, prev[:i]...)
				out = append(out, widened)
				out = append(out, next[cn+1:]...)
				timeline.Renumber(out, 0)
				return out
			}
		}
	}
	return concat(prev[:overlapPrev], next)
}

// Merge folds Resolve over windows in time order. Empty windows are skipped.
func (r Resolver) Merge(windows [][]timeline.Sentence) []timeline.Sentence {
	var acc []timeline.Sentence
	for _, w := range windows {
		if len(w) == 0 {
			continue
		}
		acc = r.Resolve(acc, w)
	}
	return acc
}

func concat(prev, next []timeline.Sentence) []timeline.Sentence {
	out := make([]timeline.Sentence, 0, len(prev)+len(next))
	out = append(out, prev...)
	out = append(out, next...)
	timeline.Renumber(out, 0)
	return out
}

func renumbered(s []timeline.Sentence) []timeline.Sentence {
	out := slices.Clone(s)
	timeline.Renumber(out, 0)
	return out
}
