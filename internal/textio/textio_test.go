package textio_test

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/flexalign/internal/textio"
	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/pkg/align"
)

func TestReadSegments_SkipsMalformed(t *testing.T) {
	t.Parallel()

	in := `rec_seg001 rec 0.0 2.5
rec_seg002 rec two 4.0
rec_seg003 rec 5

rec_seg004 rec 6.5 9.0
rec_seg005 rec 9.0 8.0
`
	segs, err := textio.ReadSegments(strings.NewReader(in), "segments")
	if err != nil {
		t.Fatalf("ReadSegments: %v", err)
	}
	want := []timeline.Segment{
		{ID: "rec_seg001", RecordingID: "rec", Start: 0, End: 2.5},
		{ID: "rec_seg004", RecordingID: "rec", Start: 6.5, End: 9},
	}
	if !slices.Equal(segs, want) {
		t.Errorf("segments = %+v, want %+v", segs, want)
	}
}

func TestSegments_RoundTripFormats(t *testing.T) {
	t.Parallel()

	segs := []timeline.Segment{
		{ID: "r_seg002", RecordingID: "r", Start: 3, End: 4.25},
		{ID: "r_seg001", RecordingID: "r", Start: 0.5, End: 3},
	}

	t.Run("kaldi", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := textio.WriteSegments(&buf, segs, textio.FormatKaldi); err != nil {
			t.Fatalf("WriteSegments: %v", err)
		}
		if got, want := buf.String(), "r_seg002 r 3 4.25\nr_seg001 r 0.5 3\n"; got != want {
			t.Errorf("kaldi output = %q, want %q", got, want)
		}
		back, err := textio.ReadSegments(&buf, "buf")
		if err != nil {
			t.Fatalf("ReadSegments: %v", err)
		}
		if !slices.Equal(back, segs) {
			t.Errorf("read back %+v", back)
		}
	})

	t.Run("json is ordered by start", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := textio.WriteSegments(&buf, segs, textio.FormatJSON); err != nil {
			t.Fatalf("WriteSegments: %v", err)
		}
		back, err := textio.ReadSegmentsJSON(&buf, "r")
		if err != nil {
			t.Fatalf("ReadSegmentsJSON: %v", err)
		}
		want := []timeline.Segment{segs[1], segs[0]}
		if !slices.Equal(back, want) {
			t.Errorf("read back %+v, want %+v", back, want)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		if err := textio.WriteSegments(&bytes.Buffer{}, segs, "csv"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestReadTranscripts(t *testing.T) {
	t.Parallel()

	in := "s1 the cat sat\ns2\ns3 on  the mat\n"
	got, err := textio.ReadTranscripts(strings.NewReader(in), "text")
	if err != nil {
		t.Fatalf("ReadTranscripts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transcripts, want 2", len(got))
	}
	if got[1].ID != "s3" || !slices.Equal(got[1].Tokens, []string{"on", "the", "mat"}) {
		t.Errorf("second transcript = %+v", got[1])
	}
}

func TestReadTimes(t *testing.T) {
	t.Parallel()

	in := "w1 0.0 0.4 0.9 1.5\nw2 bad 1.0\nw3 2.0\n"
	got, err := textio.ReadTimes(strings.NewReader(in), "alignments")
	if err != nil {
		t.Fatalf("ReadTimes: %v", err)
	}
	if _, ok := got["w2"]; ok {
		t.Error("malformed line was not skipped")
	}
	w1 := got["w1"]
	if !slices.Equal(w1.Starts, []float64{0, 0.4, 0.9}) || w1.Duration != 1.5 {
		t.Errorf("w1 = %+v", w1)
	}
	if w3 := got["w3"]; len(w3.Starts) != 0 || w3.Duration != 2 {
		t.Errorf("w3 = %+v", w3)
	}
}

func TestSTM_RoundTrip(t *testing.T) {
	t.Parallel()

	sents := []timeline.Sentence{
		{ID: "sent000", RecordingID: "rec", Start: 0, End: 2.5, Text: "the cat sat"},
		{ID: "sent001", RecordingID: "rec", Start: 2.5, End: 4.126, Text: "on the mat"},
	}
	var buf bytes.Buffer
	if err := textio.WriteSTM(&buf, sents); err != nil {
		t.Fatalf("WriteSTM: %v", err)
	}
	want := "sent000 rec 0.00 2.50 the cat sat\nsent001 rec 2.50 4.13 on the mat\n"
	if buf.String() != want {
		t.Fatalf("stm = %q, want %q", buf.String(), want)
	}
	back, err := textio.ReadSTM(&buf, "stm")
	if err != nil {
		t.Fatalf("ReadSTM: %v", err)
	}
	if len(back) != 2 || back[1].Text != "on the mat" || back[1].End != 4.13 {
		t.Errorf("read back %+v", back)
	}
}

func TestAnchorFile_RoundTrip(t *testing.T) {
	t.Parallel()

	al := align.Levenshtein(align.Tokens("the bat big sat"), align.Tokens("the cat sat"))
	var buf bytes.Buffer
	if err := textio.WriteAnchorFile(&buf, "hyp.txt\nref.txt", al); err != nil {
		t.Fatalf("WriteAnchorFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "#flexalign-anchor v1" || lines[1] != "hyp.txt ref.txt" || lines[2] != "2 4 3" {
		t.Fatalf("unexpected header lines %q", lines[:3])
	}

	af, err := textio.ReadAnchorFile(&buf, "u1")
	if err != nil {
		t.Fatalf("ReadAnchorFile: %v", err)
	}
	if af.Version != 1 || af.Distance != 2 || af.HypLen != 4 || af.RefLen != 3 {
		t.Errorf("anchor file = %+v", af)
	}
	want := al.Record("u1")
	if !slices.Equal(af.Record.Ref, want.Ref) || !slices.Equal(af.Record.Hyp, want.Hyp) || !slices.Equal(af.Record.Ops, want.Ops) {
		t.Errorf("record = %+v, want %+v", af.Record, want)
	}
}

func TestReadAnchorFile_Legacy(t *testing.T) {
	t.Parallel()

	in := "a.hyp b.ref\n1 2 2\na [ x ]\na [ b ]\n"
	af, err := textio.ReadAnchorFile(strings.NewReader(in), "legacy")
	if err != nil {
		t.Fatalf("ReadAnchorFile: %v", err)
	}
	if af.Version != 0 || af.Meta != "a.hyp b.ref" {
		t.Errorf("anchor file = %+v", af)
	}
	if af.Record.CSID != (align.CSID{C: 1, S: 1}) {
		t.Errorf("CSID = %v", af.Record.CSID)
	}
}

func TestReadAnchorFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "future version", in: "#flexalign-anchor v2\nm\n0 1 1\na\na\n", want: textio.ErrUnsupportedVersion},
		{name: "truncated", in: "#flexalign-anchor v1\nm\n0 1 1\n", want: textio.ErrMalformed},
		{name: "bracket mismatch", in: "m\n1 1 1\n[ a ]\nb c d\n", want: textio.ErrMalformed},
		{name: "bad header", in: "m\n1 x 1\na\na\n", want: textio.ErrMalformed},
		{name: "distance disagrees", in: "#flexalign-anchor v1\nm\n3 1 1\na\na\n", want: textio.ErrMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := textio.ReadAnchorFile(strings.NewReader(tc.in), "bad")
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReadDetails(t *testing.T) {
	t.Parallel()

	in := `u1 ref the cat *** sat
u1 hyp the bat big sat
u1 op C S I C
u1 #csid 2 1 1 0
u2 ref a b
u2 hyp a
u3 ref x
u3 hyp y
u3 op S
u3 #csid 0 1 0 0
u4 ref a
u4 hyp a
u4 op C
u4 #csid 5 0 0 0
`
	recs, err := textio.ReadDetails(strings.NewReader(in), "details", textio.KaldiEpsilon)
	if err != nil {
		t.Fatalf("ReadDetails: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(recs), recs)
	}
	if recs[0].ID != "u1" || recs[0].Ref[2] != align.Epsilon {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].ID != "u3" || recs[1].CSID != (align.CSID{S: 1}) {
		t.Errorf("second record = %+v", recs[1])
	}
}
