package textio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MrWong99/flexalign/internal/segment"
	"github.com/MrWong99/flexalign/internal/timeline"
)

// ReadTranscripts parses "<id> <tokens…>" lines. Lines carrying an id but no
// tokens are skipped without a warning, since decoders emit them for silent
// segments.
func ReadTranscripts(r io.Reader, source string) ([]timeline.Transcript, error) {
	var out []timeline.Transcript
	err := scanFields(r, source, func(f []string) error {
		if len(f) < 2 {
			return nil
		}
		out = append(out, timeline.Transcript{ID: f[0], Tokens: f[1:]})
		return nil
	})
	return out, err
}

// WriteTranscripts writes "<id> <tokens…>" lines.
func WriteTranscripts(w io.Writer, ts []timeline.Transcript) error {
	bw := bufio.NewWriter(w)
	for _, t := range ts {
		fmt.Fprintf(bw, "%s %s\n", t.ID, strings.Join(t.Tokens, " "))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("textio: write transcripts: %w", err)
	}
	return nil
}

// ReadTimes parses token time lines "<window_id> <t_0> … <t_{n-1}> <duration>"
// keyed by window id.
func ReadTimes(r io.Reader, source string) (map[string]segment.Times, error) {
	out := make(map[string]segment.Times)
	err := scanFields(r, source, func(f []string) error {
		if len(f) < 2 {
			return malformed("times line has no duration")
		}
		vals := make([]float64, len(f)-1)
		for i, s := range f[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return malformed("time %q: %v", s, err)
			}
			vals[i] = v
		}
		out[f[0]] = segment.Times{Starts: vals[:len(vals)-1], Duration: vals[len(vals)-1]}
		return nil
	})
	return out, err
}

// ReadSTM parses sentence timeline lines
// "<sentence_id> <recording_id> <start> <end> <text…>".
func ReadSTM(r io.Reader, source string) ([]timeline.Sentence, error) {
	var out []timeline.Sentence
	err := scanFields(r, source, func(f []string) error {
		if len(f) < 5 {
			return malformed("stm line has %d fields, want at least 5", len(f))
		}
		start, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return malformed("start %q: %v", f[2], err)
		}
		end, err := strconv.ParseFloat(f[3], 64)
		if err != nil {
			return malformed("end %q: %v", f[3], err)
		}
		out = append(out, timeline.Sentence{
			ID:          f[0],
			RecordingID: f[1],
			Start:       start,
			End:         end,
			Text:        strings.Join(f[4:], " "),
		})
		return nil
	})
	return out, err
}

// WriteSTM writes sentences as "<sentence_id> <recording_id> <start> <end>
// <text>" with times rounded to centiseconds.
func WriteSTM(w io.Writer, sents []timeline.Sentence) error {
	bw := bufio.NewWriter(w)
	for _, s := range sents {
		fmt.Fprintf(bw, "%s %s %.2f %.2f %s\n", s.ID, s.RecordingID, s.Start, s.End, s.Text)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("textio: write stm: %w", err)
	}
	return nil
}
