package anchor

import (
	"testing"

	"github.com/MrWong99/flexalign/pkg/align"
)

// parseOps turns "CCSID" into ops; spaces are ignored.
func parseOps(t *testing.T, s string) []align.Op {
	t.Helper()
	var ops []align.Op
	for _, r := range s {
		if r == ' ' {
			continue
		}
		op, err := align.ParseOp(string(r))
		if err != nil {
			t.Fatalf("parseOps(%q): %v", s, err)
		}
		ops = append(ops, op)
	}
	return ops
}

func TestSatisfy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ops  string
		want bool
	}{
		{name: "empty", ops: "", want: false},
		{name: "ratio exactly 0.6", ops: "CCCSS", want: true},
		{name: "two of three", ops: "CSC", want: true},
		{name: "ratio below", ops: "CCSSS", want: false},
		{name: "absolute count", ops: "CCCSCSCSCSCSCSSSSSSS", want: true},
		{name: "run of four at the end", ops: "SSSSSSSSSCCCC", want: true},
		{name: "run of three only", ops: "SSSSSSSSCCCSS", want: false},
	}

	s := DefaultScorer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Satisfy(parseOps(t, tc.ops)); got != tc.want {
				t.Errorf("Satisfy(%q) = %v, want %v", tc.ops, got, tc.want)
			}
		})
	}
}

func TestLongestRun(t *testing.T) {
	t.Parallel()

	ops := parseOps(t, "CCSCCCIDDD")
	if got := LongestRun(ops, align.Correct); got != 3 {
		t.Errorf("LongestRun(C) = %d, want 3", got)
	}
	if got := LongestRun(ops, align.Delete); got != 3 {
		t.Errorf("LongestRun(D) = %d, want 3", got)
	}
	if got := LongestRun(nil, align.Correct); got != 0 {
		t.Errorf("LongestRun(nil) = %d, want 0", got)
	}
}

func TestLongestC(t *testing.T) {
	t.Parallel()

	// Three sentences separated at positions 5 and 11:
	//   [0,5)  SSSSS  density 0
	//   [6,11) CCCCS  density 0.8
	//   [12,17) CCCSS
	ops := parseOps(t, "SSSSS C CCCCS C CCCSS")
	isSep := func(i int) bool { return i == 5 || i == 11 }
	window := Span{Start: 0, End: 17}

	t.Run("long range without a long streak is dropped", func(t *testing.T) {
		t.Parallel()
		_, _, ok := DefaultScorer().LongestC(ops, isSep, window)
		if ok {
			t.Fatal("expected no candidate with the default count threshold")
		}
	})

	t.Run("range grows over the last segment", func(t *testing.T) {
		t.Parallel()
		s := DefaultScorer()
		s.CountThreshold = 20
		cands, bounds, ok := s.LongestC(ops, isSep, window)
		if !ok {
			t.Fatal("expected a candidate")
		}
		if len(cands) != 1 {
			t.Fatalf("got %d candidates, want 1", len(cands))
		}
		want := Span{Start: 6, End: 17}
		if bounds != want {
			t.Errorf("bounds = %+v, want %+v", bounds, want)
		}
		if d := cands[0].Density; d < 0.63 || d > 0.64 {
			t.Errorf("density = %v, want 7/11", d)
		}
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		t.Parallel()
		_, _, ok := DefaultScorer().LongestC(parseOps(t, "SSSS"), func(int) bool { return false }, Span{Start: 0, End: 4})
		if ok {
			t.Fatal("expected no candidate")
		}
	})
}

func TestInsertBeam(t *testing.T) {
	t.Parallel()

	var beam []Candidate
	for _, d := range []float64{0.5, 0.9, 0.4, 0.7, 0.9} {
		beam = insertBeam(beam, Candidate{Density: d, Span: Span{Start: int(d * 10)}}, 3)
	}
	want := []float64{0.9, 0.9, 0.7}
	if len(beam) != len(want) {
		t.Fatalf("beam len = %d, want %d", len(beam), len(want))
	}
	for i, d := range want {
		if beam[i].Density != d {
			t.Errorf("beam[%d].Density = %v, want %v", i, beam[i].Density, d)
		}
	}
}

func TestNumberSeparators(t *testing.T) {
	t.Parallel()

	toks := []string{"_", "<sep>", "a", "b", "<sep>", "<sep>", "c"}
	s := NumberSeparators(toks, DefaultSeparator)
	if s.Count() != 3 {
		t.Errorf("Count = %d, want 3", s.Count())
	}
	if s.First() != 1 {
		t.Errorf("First = %d, want 1", s.First())
	}
	wantIDs := []int{-1, 0, -1, -1, 1, 2, -1}
	for i, want := range wantIDs {
		if got := s.ID(i); got != want {
			t.Errorf("ID(%d) = %d, want %d", i, got, want)
		}
	}
	if s.IsSep(-1) || s.IsSep(len(toks)) {
		t.Error("IsSep out of range should be false")
	}
}
