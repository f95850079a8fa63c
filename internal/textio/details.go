package textio

import (
	"io"
	"strconv"

	"github.com/MrWong99/flexalign/pkg/align"
)

// KaldiEpsilon is the placeholder Kaldi's alignment scripts print for a
// missing token.
const KaldiEpsilon = "***"

// ReadDetails parses the per-utterance output of Kaldi's alignment scoring:
// four consecutive lines per utterance,
//
//	<id> ref <tokens…>
//	<id> hyp <tokens…>
//	<id> op <ops…>
//	<id> #csid <C> <S> <I> <D>
//
// eps is the placeholder used in the file; it is mapped to [align.Epsilon].
// Records that do not validate are logged and skipped.
func ReadDetails(r io.Reader, source, eps string) ([]align.Record, error) {
	var (
		out []align.Record
		cur align.Record
		got int
	)
	reset := func() {
		cur = align.Record{}
		got = 0
	}
	mapEps := func(toks []string) []string {
		mapped := make([]string, len(toks))
		for i, t := range toks {
			if t == eps {
				t = align.Epsilon
			}
			mapped[i] = t
		}
		return mapped
	}

	err := scanFields(r, source, func(f []string) error {
		if len(f) < 2 {
			reset()
			return malformed("details line has %d fields", len(f))
		}
		id, kind, rest := f[0], f[1], f[2:]
		if got > 0 && id != cur.ID {
			reset()
		}
		cur.ID = id

		switch kind {
		case "ref":
			cur.Ref = mapEps(rest)
		case "hyp":
			cur.Hyp = mapEps(rest)
		case "op":
			ops := make([]align.Op, len(rest))
			for i, s := range rest {
				op, err := align.ParseOp(s)
				if err != nil {
					reset()
					return malformed("utterance %s: %v", id, err)
				}
				ops[i] = op
			}
			cur.Ops = ops
		case "#csid":
			if len(rest) != 4 {
				reset()
				return malformed("utterance %s: #csid has %d counts", id, len(rest))
			}
			var c [4]int
			for i, s := range rest {
				n, err := strconv.Atoi(s)
				if err != nil {
					reset()
					return malformed("utterance %s: count %q", id, s)
				}
				c[i] = n
			}
			cur.CSID = align.CSID{C: c[0], S: c[1], I: c[2], D: c[3]}
		default:
			reset()
			return malformed("utterance %s: unknown field %q", id, kind)
		}
		got++

		if got < 4 {
			return nil
		}
		rec := cur
		reset()
		if err := rec.Validate(); err != nil {
			return malformed("%v", err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
