package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/flexalign/internal/report"
	"github.com/MrWong99/flexalign/pkg/align"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDescribe(t *testing.T) {
	t.Parallel()

	s := report.Describe([]float64{0.9, 0.2, 0.4})
	if s.Count != 3 || !approx(s.Mean, 0.5) || s.Median != 0.4 || s.Min != 0.2 || s.Max != 0.9 {
		t.Errorf("Describe = %+v", s)
	}
	if want := math.Sqrt(0.13); !approx(s.StdDev, want) {
		t.Errorf("StdDev = %v, want %v", s.StdDev, want)
	}

	if one := report.Describe([]float64{0.7}); one.StdDev != 0 || one.Mean != 0.7 {
		t.Errorf("single value = %+v", one)
	}
	if empty := report.Describe(nil); empty != (report.Stats{}) {
		t.Errorf("empty = %+v", empty)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	recs := []report.Recording{
		{RecordingID: "a", AlignedRatio: 0.8, Accepted: 4, Rejected: 1, CorpusWER: 0.1},
		{RecordingID: "b", Error: "pipeline: missing reference"},
		{RecordingID: "c", AlignedRatio: 0.6, Accepted: 2, Unmatched: 3, CorpusWER: -1},
	}
	s := report.Summarize(recs)
	if s.Recordings != 3 || s.Failed != 1 || !slices.Equal(s.FailedIDs, []string{"b"}) {
		t.Errorf("counts = %+v", s)
	}
	if s.Accepted != 6 || s.Rejected != 1 || s.Unmatched != 3 {
		t.Errorf("anchor totals = %d/%d/%d", s.Accepted, s.Rejected, s.Unmatched)
	}
	if s.AlignedRatio.Count != 2 || !approx(s.AlignedRatio.Mean, 0.7) {
		t.Errorf("aligned ratio = %+v", s.AlignedRatio)
	}
	if s.CorpusWER.Count != 1 || s.CorpusWER.Mean != 0.1 {
		t.Errorf("corpus wer = %+v", s.CorpusWER)
	}
}

func TestEditDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hyp, ref string
		want     int
	}{
		{"the cat sat", "the cat sat", 0},
		{"the bat big sat", "the cat sat", 2},
		{"", "a b c", 3},
		{"catalog", "cat", 1},
	}
	for _, tc := range tests {
		got := report.EditDistance(align.Tokens(tc.hyp), align.Tokens(tc.ref))
		if got != tc.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tc.hyp, tc.ref, got, tc.want)
		}
		if lev := align.Distance(align.Tokens(tc.hyp), align.Tokens(tc.ref)); lev != got {
			t.Errorf("EditDistance(%q, %q) = %d disagrees with align.Distance %d", tc.hyp, tc.ref, got, lev)
		}
	}
}

func TestCorpusWER(t *testing.T) {
	t.Parallel()

	pairs := []report.Pair{
		{Hyp: align.Tokens("the cat sat"), Ref: align.Tokens("the cat sat")},
		{Hyp: align.Tokens("on teh mat"), Ref: align.Tokens("on the mat")},
		{Hyp: nil, Ref: align.Tokens("end")},
	}
	got, err := report.CorpusWER(pairs)
	if err != nil {
		t.Fatalf("CorpusWER: %v", err)
	}
	if !approx(got, 2.0/7) {
		t.Errorf("CorpusWER = %v, want %v", got, 2.0/7)
	}

	if _, err := report.CorpusWER([]report.Pair{{Hyp: align.Tokens("x")}}); !errors.Is(err, align.ErrEmptyReference) {
		t.Errorf("empty reference err = %v", err)
	}
}

func TestPairSentences(t *testing.T) {
	t.Parallel()

	ref := [][]string{align.Tokens("a b"), align.Tokens("c d"), align.Tokens("e f")}
	tests := []struct {
		name     string
		hyp      string
		wantHyps []string
		wantWER  float64
	}{
		{"identical", "a b c d e f", []string{"a b", "c d", "e f"}, 0},
		{"missing sentence", "a b e f", []string{"a b", "", "e f"}, 2.0 / 6},
		{"unknown token stays in current sentence", "a zzz b c d e f", []string{"a zzz b", "c d", "e f"}, 1.0 / 6},
		{"leading unknown token", "zzz a b", []string{"zzz a b", "", ""}, 5.0 / 6},
		{"repeated token moves forward", "a b d c d e f", []string{"a b", "d c d", "e f"}, 1.0 / 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pairs := report.PairSentences(align.Tokens(tc.hyp), ref)
			if len(pairs) != len(ref) {
				t.Fatalf("got %d pairs, want %d", len(pairs), len(ref))
			}
			for i, p := range pairs {
				if got := strings.Join(p.Hyp, " "); got != tc.wantHyps[i] {
					t.Errorf("pair %d hyp = %q, want %q", i, got, tc.wantHyps[i])
				}
			}
			got, err := report.CorpusWER(pairs)
			if err != nil {
				t.Fatalf("CorpusWER: %v", err)
			}
			if !approx(got, tc.wantWER) {
				t.Errorf("CorpusWER = %v, want %v", got, tc.wantWER)
			}
		})
	}

	if pairs := report.PairSentences(align.Tokens("a"), nil); pairs != nil {
		t.Errorf("pairs without reference = %+v, want nil", pairs)
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	recs := []report.Recording{{RecordingID: "a", AlignedRatio: 1, Accepted: 2}}
	var buf bytes.Buffer
	if err := report.Write(&buf, report.Summarize(recs), recs); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got struct {
		Summary    report.Summary     `json:"summary"`
		Recordings []report.Recording `json:"recordings"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Summary.Accepted != 2 || len(got.Recordings) != 1 || got.Recordings[0].RecordingID != "a" {
		t.Errorf("decoded = %+v", got)
	}
}
