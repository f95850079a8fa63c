// Package report aggregates per-recording alignment diagnostics into a batch
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/flexalign/pkg/align"
)

// Recording holds the diagnostics of one processed recording.
type Recording struct {
	RecordingID string `json:"recording_id"`
	RunID       string `json:"run_id,omitempty"`

	Sentences int `json:"sentences"`

	AlignedRatio float64 `json:"aligned_ratio"`
	Accepted     int     `json:"accepted"`
	Rejected     int     `json:"rejected"`
	Unmatched    int     `json:"unmatched"`

	WindowsMerged  int `json:"windows_merged"`
	WindowsSkipped int `json:"windows_skipped"`

	// CorpusWER compares the final transcript with the full reference. It
	// is -1 when the reference is empty.
	CorpusWER float64 `json:"corpus_wer"`

	// Error is set when the recording failed.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the recording was aborted.
func (r Recording) Failed() bool { return r.Error != "" }

// Stats describes a sample of values.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Describe computes Stats of xs. The standard deviation of fewer than two
// values is 0.
func Describe(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	s := Stats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// Summary is the batch-level view written to report.json.
type Summary struct {
	Recordings int      `json:"recordings"`
	Failed     int      `json:"failed"`
	FailedIDs  []string `json:"failed_ids,omitempty"`

	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Unmatched int `json:"unmatched"`

	AlignedRatio Stats `json:"aligned_ratio"`
	CorpusWER    Stats `json:"corpus_wer"`
}

// Summarize aggregates recs. Failed recordings are counted but excluded from
// the statistics.
func Summarize(recs []Recording) Summary {
	s := Summary{Recordings: len(recs)}
	var ratios, wers []float64
	for _, r := range recs {
		if r.Failed() {
			s.Failed++
			s.FailedIDs = append(s.FailedIDs, r.RecordingID)
			continue
		}
		s.Accepted += r.Accepted
		s.Rejected += r.Rejected
		s.Unmatched += r.Unmatched
		ratios = append(ratios, r.AlignedRatio)
		if r.CorpusWER >= 0 {
			wers = append(wers, r.CorpusWER)
		}
	}
	s.AlignedRatio = Describe(ratios)
	s.CorpusWER = Describe(wers)
	return s
}

// Pair is a hypothesis and its reference.
type Pair struct {
	Hyp []string
	Ref []string
}

// EditDistance returns the token-level Levenshtein distance of hyp and ref.
func EditDistance(hyp, ref []string) int {
	h, r := encode(hyp, ref)
	return matchr.Levenshtein(h, r)
}

// CorpusWER returns the summed edit distance of all pairs divided by the
// summed reference length.
func CorpusWER(pairs []Pair) (float64, error) {
	var dist, refLen int
	for _, p := range pairs {
		dist += EditDistance(p.Hyp, p.Ref)
		refLen += len(p.Ref)
	}
	if refLen == 0 {
		return 0, fmt.Errorf("report: corpus wer: %w", align.ErrEmptyReference)
	}
	return float64(dist) / float64(refLen), nil
}

// PairSentences attributes the hypothesis tokens to the reference sentences
// and returns one pair per reference sentence. Hypothesis tokens are walked in
// order; each one is charged to the sentence holding its next occurrence at
// or after the reference cursor, or to the current sentence when it does not
// occur again. Reference sentences no token reaches pair with an empty
// hypothesis.
func PairSentences(hyp []string, ref [][]string) []Pair {
	if len(ref) == 0 {
		return nil
	}
	pairs := make([]Pair, len(ref))
	var sentOf []int
	positions := make(map[string][]int)
	for i, sent := range ref {
		pairs[i].Ref = sent
		for _, tok := range sent {
			positions[tok] = append(positions[tok], len(sentOf))
			sentOf = append(sentOf, i)
		}
	}

	cursor, cur := 0, 0
	for _, tok := range hyp {
		pos := positions[tok]
		if k, _ := slices.BinarySearch(pos, cursor); k < len(pos) {
			cursor = pos[k] + 1
			cur = sentOf[pos[k]]
		}
		pairs[cur].Hyp = append(pairs[cur].Hyp, tok)
	}
	return pairs
}

// encode maps every distinct token to one rune so that a character-level
// edit distance counts token edits.
func encode(a, b []string) (string, string) {
	ids := make(map[string]rune)
	enc := func(tokens []string) string {
		var sb strings.Builder
		for _, t := range tokens {
			r, ok := ids[t]
			if !ok {
				r = tokenRune(len(ids))
				ids[t] = r
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	return enc(a), enc(b)
}

// tokenRune returns the i-th valid rune, skipping the surrogate range.
func tokenRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// Write encodes the summary and per-recording diagnostics as indented JSON.
func Write(w io.Writer, sum Summary, recs []Recording) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(struct {
		Summary    Summary     `json:"summary"`
		Recordings []Recording `json:"recordings"`
	}{sum, recs})
	if err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}
