// Package align implements token-level edit-distance alignment between a
// noisy hypothesis and a reference script, and the alignment record that every
// downstream stage of flexalign consumes.
//
// An [Record] holds the reference and hypothesis token streams padded with
// [Epsilon] so that both have the same length, together with one [Op] per
// position describing how the two tokens relate:
//
//	ref:  the  cat  <eps> sat
//	hyp:  the  bat  big   sat
//	ops:  C    S    I     C
//
// Records are produced once (by [Levenshtein] or read from an external
// aligner's output) and are read-only afterwards.
package align

import (
	"errors"
	"fmt"
	"strings"
)

// Epsilon is the placeholder token used on either side of an alignment where
// the other side has a token that was inserted or deleted.
const Epsilon = "<eps>"

// Op is a single edit operation in an alignment.
type Op byte

const (
	Correct    Op = 'C'
	Substitute Op = 'S'
	Insert     Op = 'I'
	Delete     Op = 'D'
)

// String returns the one-letter code used in alignment files.
func (o Op) String() string {
	return string(o)
}

// ParseOp converts a one-letter code ("C", "S", "I" or "D") to an [Op].
func ParseOp(s string) (Op, error) {
	switch s {
	case "C":
		return Correct, nil
	case "S":
		return Substitute, nil
	case "I":
		return Insert, nil
	case "D":
		return Delete, nil
	}
	return 0, fmt.Errorf("align: unknown op %q", s)
}

// CSID counts correct, substituted, inserted and deleted tokens.
type CSID struct {
	C, S, I, D int
}

// RefLen is the reference length implied by the counts (C+S+D).
func (c CSID) RefLen() int { return c.C + c.S + c.D }

// HypLen is the hypothesis length implied by the counts (C+S+I).
func (c CSID) HypLen() int { return c.C + c.S + c.I }

// Total is the number of aligned positions.
func (c CSID) Total() int { return c.C + c.S + c.I + c.D }

// Add returns the element-wise sum of c and o.
func (c CSID) Add(o CSID) CSID {
	return CSID{C: c.C + o.C, S: c.S + o.S, I: c.I + o.I, D: c.D + o.D}
}

// String formats the counts in Kaldi's "#csid" order.
func (c CSID) String() string {
	return fmt.Sprintf("%d %d %d %d", c.C, c.S, c.I, c.D)
}

// CountOps tallies ops into a [CSID].
func CountOps(ops []Op) CSID {
	var c CSID
	for _, o := range ops {
		switch o {
		case Correct:
			c.C++
		case Substitute:
			c.S++
		case Insert:
			c.I++
		case Delete:
			c.D++
		}
	}
	return c
}

// Record is one alignment between a reference and a hypothesis.
type Record struct {
	// ID identifies the record, e.g. an utterance or "<hyp>_vs_<ref>".
	ID string

	Ref  []string
	Hyp  []string
	Ops  []Op
	CSID CSID
}

// ErrInvalidRecord is wrapped by [Record.Validate] failures.
var ErrInvalidRecord = errors.New("align: invalid record")

// NewRecord builds a record from epsilon-padded token streams, deriving the
// ops from the token pairs.
func NewRecord(id string, ref, hyp []string) (Record, error) {
	if len(ref) != len(hyp) {
		return Record{}, fmt.Errorf("%w: %s: ref has %d tokens, hyp has %d", ErrInvalidRecord, id, len(ref), len(hyp))
	}
	ops := make([]Op, len(ref))
	for i := range ref {
		ops[i] = PairOp(ref[i], hyp[i])
	}
	return Record{ID: id, Ref: ref, Hyp: hyp, Ops: ops, CSID: CountOps(ops)}, nil
}

// PairOp classifies one aligned token pair.
func PairOp(ref, hyp string) Op {
	switch {
	case ref == Epsilon:
		return Insert
	case hyp == Epsilon:
		return Delete
	case ref == hyp:
		return Correct
	}
	return Substitute
}

// Validate checks the structural invariants of r: all three streams have the
// same length, the counts add up to that length, and the counts agree with the
// ops.
func (r Record) Validate() error {
	if len(r.Ref) != len(r.Hyp) || len(r.Ref) != len(r.Ops) {
		return fmt.Errorf("%w: %s: lengths ref=%d hyp=%d ops=%d", ErrInvalidRecord, r.ID, len(r.Ref), len(r.Hyp), len(r.Ops))
	}
	if r.CSID.Total() != len(r.Ops) {
		return fmt.Errorf("%w: %s: csid %v does not sum to %d", ErrInvalidRecord, r.ID, r.CSID, len(r.Ops))
	}
	if got := CountOps(r.Ops); got != r.CSID {
		return fmt.Errorf("%w: %s: csid %v disagrees with ops %v", ErrInvalidRecord, r.ID, r.CSID, got)
	}
	return nil
}

// RefTokens returns the reference tokens with epsilon placeholders removed.
func (r Record) RefTokens() []string { return StripEpsilon(r.Ref) }

// HypTokens returns the hypothesis tokens with epsilon placeholders removed.
func (r Record) HypTokens() []string { return StripEpsilon(r.Hyp) }

// StripEpsilon returns tokens without [Epsilon] placeholders.
func StripEpsilon(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != Epsilon {
			out = append(out, t)
		}
	}
	return out
}

// Tokens splits a line of space-delimited tokens.
func Tokens(s string) []string {
	return strings.Fields(s)
}
