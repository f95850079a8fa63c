// Package textio reads and writes the line-oriented text files exchanged with
// the decoding and voice activity detection tools: segment lists, id-text
// transcripts, sentence timelines, token times, anchor files and Kaldi
// per-utterance alignment details.
//
// Readers never abort on a single bad line. A line that fails to parse is
// logged at warn level with its source and line number and skipped; only I/O
// failures are returned.
package textio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrMalformed marks a line that does not follow its file format.
var ErrMalformed = errors.New("textio: malformed line")

// maxLineSize bounds a single line. Anchor files hold a whole recording's
// alignment on one line.
const maxLineSize = 256 << 20

// newScanner returns a line scanner sized for long alignment lines.
func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

// scanFields calls fn with the whitespace-separated fields of every
// non-blank line. Errors wrapping [ErrMalformed] are logged and the line is
// skipped; any other error stops the scan.
func scanFields(r io.Reader, source string, fn func(fields []string) error) error {
	sc := newScanner(r)
	n := 0
	for sc.Scan() {
		n++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := fn(fields); err != nil {
			if errors.Is(err, ErrMalformed) {
				slog.Warn("textio: skipping malformed line", "source", source, "line", n, "err", err)
				continue
			}
			return fmt.Errorf("textio: %s line %d: %w", source, n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("textio: read %s: %w", source, err)
	}
	return nil
}

// malformed builds an [ErrMalformed] error with a reason.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
