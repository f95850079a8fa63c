package align

import (
	"errors"
	"fmt"
)

// ErrEmptyReference is returned by [WER] when the counts describe an empty
// reference, for which the error rate is undefined.
var ErrEmptyReference = errors.New("align: empty reference")

// WER returns the word error rate (S+I+D)/(C+S+D) of a single utterance.
// Aggregation across utterances is left to the caller.
func WER(c CSID) (float64, error) {
	if c.C < 0 || c.S < 0 || c.I < 0 || c.D < 0 {
		return 0, fmt.Errorf("align: wer: negative count in %v", c)
	}
	ref := c.RefLen()
	if ref == 0 {
		return 0, ErrEmptyReference
	}
	return float64(c.S+c.I+c.D) / float64(ref), nil
}
