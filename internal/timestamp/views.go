package timestamp

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/flexalign/internal/textio"
	"github.com/MrWong99/flexalign/internal/timeline"
)

// WriteDump writes the audit view: the aligned ratio on the first line, then
// four lines per accepted anchor (segment id, then tab-separated hyp, ref and
// ops rows).
func WriteDump(w io.Writer, res Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%.2f\n", res.AlignedRatio())
	for _, a := range res.Accepted() {
		ops := make([]string, len(a.Ops))
		for i, o := range a.Ops {
			ops[i] = o.String()
		}
		fmt.Fprintln(bw, a.Segment.ID)
		fmt.Fprintln(bw, "hyp\t"+strings.Join(a.Hyp, "\t"))
		fmt.Fprintln(bw, "ref\t"+strings.Join(a.Ref, "\t"))
		fmt.Fprintln(bw, "ops\t"+strings.Join(ops, "\t"))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("timestamp: write dump: %w", err)
	}
	return nil
}

// WriteSegments writes the accepted segments in the same schema as the voice
// activity input.
func WriteSegments(w io.Writer, res Result, format textio.SegmentsFormat) error {
	acc := res.Accepted()
	segs := make([]timeline.Segment, len(acc))
	for i, a := range acc {
		segs[i] = a.Segment
	}
	return textio.WriteSegments(w, segs, format)
}

// WriteText writes "<segment_id> <reference text>" for every accepted anchor.
func WriteText(w io.Writer, res Result) error {
	acc := res.Accepted()
	ts := make([]timeline.Transcript, len(acc))
	for i, a := range acc {
		ts[i] = timeline.Transcript{ID: a.Segment.ID, Tokens: a.RefText()}
	}
	return textio.WriteTranscripts(w, ts)
}

// Sentences converts the accepted anchors into timed sentences with
// positional ids.
func Sentences(res Result) []timeline.Sentence {
	acc := res.Accepted()
	out := make([]timeline.Sentence, len(acc))
	for i, a := range acc {
		out[i] = timeline.Sentence{
			RecordingID: res.RecordingID,
			RefID:       a.Segment.ID,
			Start:       a.Segment.Start,
			End:         a.Segment.End,
			Text:        strings.Join(a.RefText(), " "),
		}
	}
	timeline.Renumber(out, 0)
	return out
}
