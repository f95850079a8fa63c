package timestamp_test

import (
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/flexalign/internal/textio"
	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/internal/timestamp"
	"github.com/MrWong99/flexalign/pkg/align"
)

func catMatTimeline() timeline.Timeline {
	return timeline.Timeline{
		RecordingID: "rec",
		Sentences: []timeline.Sentence{
			{ID: "sent000", RecordingID: "rec", Start: 0, End: 2, Text: "the cat sat"},
			{ID: "sent001", RecordingID: "rec", Start: 2, End: 4, Text: "on the mat"},
		},
	}
}

func catMatSegments() []timeline.Segment {
	return []timeline.Segment{
		{ID: "rec_s1", RecordingID: "rec", Start: 0, End: 2},
		{ID: "rec_s2", RecordingID: "rec", Start: 2, End: 4},
	}
}

func TestMapTimeline_EndToEnd(t *testing.T) {
	t.Parallel()

	texts := []timeline.Transcript{
		{ID: "rec_s1", Tokens: align.Tokens("the cat sat")},
		{ID: "rec_s2", Tokens: align.Tokens("on teh mat")},
	}
	res := timestamp.New().MapTimeline(catMatTimeline(), texts, catMatSegments())

	if len(res.Unmatched) != 0 {
		t.Errorf("unmatched = %v, want none", res.Unmatched)
	}
	acc := res.Accepted()
	if len(acc) != 2 {
		t.Fatalf("accepted %d anchors, want 2", len(acc))
	}
	if acc[1].Segment.Start != 2 || acc[1].Segment.End != 4 {
		t.Errorf("second anchor segment = %+v", acc[1].Segment)
	}
	if want := []align.Op{align.Correct, align.Substitute, align.Correct}; !slices.Equal(acc[1].Ops, want) {
		t.Errorf("second anchor ops = %v, want %v", acc[1].Ops, want)
	}
	if got := res.AlignedRatio(); got != 1 {
		t.Errorf("AlignedRatio = %v, want 1", got)
	}

	sents := timestamp.Sentences(res)
	want := []timeline.Sentence{
		{ID: "sent000", RecordingID: "rec", RefID: "rec_s1", Start: 0, End: 2, Text: "the cat sat"},
		{ID: "sent001", RecordingID: "rec", RefID: "rec_s2", Start: 2, End: 4, Text: "on the mat"},
	}
	if !slices.Equal(sents, want) {
		t.Errorf("sentences = %+v, want %+v", sents, want)
	}
}

func TestMap_UnmatchedSegmentIsSkipped(t *testing.T) {
	t.Parallel()

	rec := align.Levenshtein(align.Tokens("the cat sat"), catMatTimeline().Tokens()).Record("rec")
	texts := []timeline.Transcript{
		{ID: "rec_s1", Tokens: align.Tokens("the dog")},
		{ID: "rec_s2", Tokens: align.Tokens("sat")},
	}
	res := timestamp.New().Map(rec, texts, catMatSegments())

	if !slices.Equal(res.Unmatched, []string{"rec_s1"}) {
		t.Errorf("unmatched = %v, want [rec_s1]", res.Unmatched)
	}
	if len(res.Anchors) != 1 || res.Anchors[0].Segment.ID != "rec_s2" || !res.Anchors[0].Accepted {
		t.Fatalf("anchors = %+v", res.Anchors)
	}
	if got, want := res.AlignedRatio(), 1.0/6; math.Abs(got-want) > 1e-12 {
		t.Errorf("AlignedRatio = %v, want %v", got, want)
	}
}

func TestMap_RejectedAnchorIsExcluded(t *testing.T) {
	t.Parallel()

	tl := timeline.Timeline{
		RecordingID: "rec",
		Sentences:   []timeline.Sentence{{ID: "sent000", Text: "a b c"}},
	}
	texts := []timeline.Transcript{{ID: "rec_s1", Tokens: align.Tokens("x y z")}}
	res := timestamp.New().MapTimeline(tl, texts, catMatSegments()[:1])

	if len(res.Anchors) != 1 || res.Anchors[0].Accepted {
		t.Fatalf("anchors = %+v, want one rejected", res.Anchors)
	}
	if res.Rejected() != 1 || len(res.Accepted()) != 0 {
		t.Errorf("rejected = %d, accepted = %d", res.Rejected(), len(res.Accepted()))
	}
	var buf bytes.Buffer
	if err := timestamp.WriteDump(&buf, res); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	if buf.String() != "0.00\n" {
		t.Errorf("dump = %q", buf.String())
	}
}

func TestMap_MissingSegmentTimes(t *testing.T) {
	t.Parallel()

	texts := []timeline.Transcript{
		{ID: "rec_s1", Tokens: align.Tokens("the cat sat")},
		{ID: "rec_s9", Tokens: align.Tokens("on the mat")},
	}
	res := timestamp.New().MapTimeline(catMatTimeline(), texts, catMatSegments())
	if !slices.Equal(res.Unmatched, []string{"rec_s9"}) {
		t.Errorf("unmatched = %v, want [rec_s9]", res.Unmatched)
	}
	if len(res.Accepted()) != 1 {
		t.Errorf("accepted = %d, want 1", len(res.Accepted()))
	}
}

func TestMap_EmptyInputs(t *testing.T) {
	t.Parallel()

	res := timestamp.New().MapTimeline(timeline.Timeline{RecordingID: "rec"}, nil, nil)
	if res.AlignedRatio() != 0 || len(res.Anchors) != 0 || len(res.Unmatched) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestViews(t *testing.T) {
	t.Parallel()

	texts := []timeline.Transcript{
		{ID: "rec_s1", Tokens: align.Tokens("the cat sat")},
		{ID: "rec_s2", Tokens: align.Tokens("on teh mat")},
	}
	res := timestamp.New().MapTimeline(catMatTimeline(), texts, catMatSegments())

	var dump bytes.Buffer
	if err := timestamp.WriteDump(&dump, res); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	wantDump := "1.00\n" +
		"rec_s1\nhyp\tthe\tcat\tsat\nref\tthe\tcat\tsat\nops\tC\tC\tC\n" +
		"rec_s2\nhyp\ton\tteh\tmat\nref\ton\tthe\tmat\nops\tC\tS\tC\n"
	if dump.String() != wantDump {
		t.Errorf("dump = %q, want %q", dump.String(), wantDump)
	}

	var segs bytes.Buffer
	if err := timestamp.WriteSegments(&segs, res, textio.FormatKaldi); err != nil {
		t.Fatalf("WriteSegments: %v", err)
	}
	if want := "rec_s1 rec 0 2\nrec_s2 rec 2 4\n"; segs.String() != want {
		t.Errorf("segments = %q, want %q", segs.String(), want)
	}

	var text bytes.Buffer
	if err := timestamp.WriteText(&text, res); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if want := "rec_s1 the cat sat\nrec_s2 on the mat\n"; text.String() != want {
		t.Errorf("text = %q, want %q", text.String(), want)
	}
}
