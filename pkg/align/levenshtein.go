package align

import (
	"fmt"
	"slices"
)

// Bracket markers wrap maximal runs of non-matching positions in a rendered
// traceback. They are reserved and must not appear as tokens.
const (
	OpenMark  = "["
	CloseMark = "]"
)

// step is the backpointer stored for every DP cell.
type step uint8

const (
	stepNone step = iota
	stepDiag
	stepUp   // consumes a token of a only
	stepLeft // consumes a token of b only
)

// Alignment is the full result of aligning a hypothesis sequence a against a
// reference sequence b.
type Alignment struct {
	// Distance is the minimum number of unit-cost edits turning a into b.
	Distance int

	// A and B are the two sequences padded with [Epsilon] to equal length.
	A, B []string

	// Ops classifies every position with B as the reference: a token present
	// only in A is an [Insert], a token present only in B is a [Delete].
	Ops []Op
}

// Levenshtein computes the minimum edit distance alignment of a against b with
// unit costs and a full traceback.
//
// When the tokens at (i, j) differ, the cell takes the first minimum of the
// already computed 2x2 neighbourhood scanned in row-major order, i.e. the
// diagonal, then the cell above, then the cell to the left. Equal-cost ties are
// therefore resolved in favour of substitution over insertion or deletion.
//
// Time and memory are O(len(a)·len(b)). Empty inputs are valid.
func Levenshtein(a, b []string) Alignment {
	ia, ib := integerize(a, b)
	m, n := len(a), len(b)
	w := n + 1

	dp := make([]int, (m+1)*w)
	ptr := make([]step, (m+1)*w)
	for i := 1; i <= m; i++ {
		dp[i*w] = i
		ptr[i*w] = stepUp
	}
	for j := 1; j <= n; j++ {
		dp[j] = j
		ptr[j] = stepLeft
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cell := i*w + j
			diag := (i-1)*w + j - 1
			if ia[i-1] == ib[j-1] {
				dp[cell] = dp[diag]
				ptr[cell] = stepDiag
				continue
			}
			best, bestStep := dp[diag], stepDiag
			if up := dp[(i-1)*w+j]; up < best {
				best, bestStep = up, stepUp
			}
			if left := dp[i*w+j-1]; left < best {
				best, bestStep = left, stepLeft
			}
			dp[cell] = best + 1
			ptr[cell] = bestStep
		}
	}

	al := Alignment{Distance: dp[m*w+n]}
	size := max(m, n)
	al.A = make([]string, 0, size)
	al.B = make([]string, 0, size)
	al.Ops = make([]Op, 0, size)

	for i, j := m, n; i > 0 || j > 0; {
		switch ptr[i*w+j] {
		case stepDiag:
			al.A = append(al.A, a[i-1])
			al.B = append(al.B, b[j-1])
			if ia[i-1] == ib[j-1] {
				al.Ops = append(al.Ops, Correct)
			} else {
				al.Ops = append(al.Ops, Substitute)
			}
			i, j = i-1, j-1
		case stepUp:
			al.A = append(al.A, a[i-1])
			al.B = append(al.B, Epsilon)
			al.Ops = append(al.Ops, Insert)
			i--
		case stepLeft:
			al.A = append(al.A, Epsilon)
			al.B = append(al.B, b[j-1])
			al.Ops = append(al.Ops, Delete)
			j--
		default:
			panic(fmt.Sprintf("align: broken backpointer at (%d, %d)", i, j))
		}
	}
	slices.Reverse(al.A)
	slices.Reverse(al.B)
	slices.Reverse(al.Ops)
	return al
}

// Distance returns only the edit distance between a and b using two DP rows.
func Distance(a, b []string) int {
	ia, ib := integerize(a, b)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			if ia[i-1] == ib[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			cur[j] = min(prev[j-1], prev[j], cur[j-1]) + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Record converts the alignment into a [Record] with B as the reference and A
// as the hypothesis.
func (al Alignment) Record(id string) Record {
	return Record{
		ID:   id,
		Ref:  al.B,
		Hyp:  al.A,
		Ops:  al.Ops,
		CSID: CountOps(al.Ops),
	}
}

// Bracketed renders both sides of the traceback with [OpenMark] and
// [CloseMark] around every maximal run of substituted, inserted or deleted
// positions. Markers are placed at the same indices on both sides, so the two
// returned slices always have equal length.
func (al Alignment) Bracketed() (a, b []string) {
	a = make([]string, 0, len(al.Ops)+2)
	b = make([]string, 0, len(al.Ops)+2)
	open := false
	for i, op := range al.Ops {
		if op != Correct && !open {
			a, b = append(a, OpenMark), append(b, OpenMark)
			open = true
		}
		if op == Correct && open {
			a, b = append(a, CloseMark), append(b, CloseMark)
			open = false
		}
		a, b = append(a, al.A[i]), append(b, al.B[i])
	}
	if open {
		a, b = append(a, CloseMark), append(b, CloseMark)
	}
	return a, b
}

// Unbracket removes bracket markers from a rendered traceback.
func Unbracket(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != OpenMark && t != CloseMark {
			out = append(out, t)
		}
	}
	return out
}

// integerize maps the tokens of both sequences to dense integer ids so the DP
// compares ints instead of strings.
func integerize(a, b []string) ([]int, []int) {
	vocab := make(map[string]int, len(a)+len(b))
	id := func(t string) int {
		v, ok := vocab[t]
		if !ok {
			v = len(vocab)
			vocab[t] = v
		}
		return v
	}
	ia := make([]int, len(a))
	for i, t := range a {
		ia[i] = id(t)
	}
	ib := make([]int, len(b))
	for i, t := range b {
		ib[i] = id(t)
	}
	return ia, ib
}
