// Package pipeline runs the alignment of whole recordings: the windowed
// timeline construction, the mapping onto voice activity segments and the
// batch across recordings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/flexalign/internal/anchor"
	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/observe"
	"github.com/MrWong99/flexalign/internal/overlap"
	"github.com/MrWong99/flexalign/internal/report"
	"github.com/MrWong99/flexalign/internal/segment"
	"github.com/MrWong99/flexalign/internal/textio"
	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/internal/timestamp"
	"github.com/MrWong99/flexalign/internal/wer"
	"github.com/MrWong99/flexalign/pkg/align"
)

// ErrMissingReference is returned when a recording has no reference script or
// no decoded text to pair it with.
var ErrMissingReference = errors.New("pipeline: missing reference")

// Inputs holds everything one recording is aligned from, fully loaded.
type Inputs struct {
	RecordingID string

	// Reference is the reference script, one entry per sentence.
	Reference []timeline.Transcript

	// Segments are the voice activity segments and Texts their decoded
	// text.
	Segments []timeline.Segment
	Texts    []timeline.Transcript

	// Windows is nil when the recording was not decoded in sliding windows.
	Windows *WindowInputs
}

// WindowInputs holds the sliding-window decoding of one recording.
type WindowInputs struct {
	Segments []timeline.Segment
	Texts    []timeline.Transcript
	Times    map[string]segment.Times
}

// Output is the complete result of one recording.
type Output struct {
	RecordingID string

	// Alignment is the alignment of the window stream against the
	// reference. Zero without windows.
	Alignment align.Alignment

	// Anchors has one entry per window.
	Anchors []anchor.Anchor

	// Windows holds the timed sentences of every window in time order,
	// keyed by window id in WindowIDs.
	WindowIDs []string
	Windows   [][]timeline.Sentence

	WindowsMerged  int
	WindowsSkipped int

	// Timeline is the merged recording timeline the segments are mapped on.
	Timeline timeline.Timeline

	Result timestamp.Result

	// Sentences is the final timestamped transcript.
	Sentences []timeline.Sentence

	// Filtered are the accepted segments kept by the utterance filter.
	Filtered []timeline.Segment

	// CorpusWER compares Sentences with the full reference; -1 when it
	// cannot be computed.
	CorpusWER float64
}

// Final returns the timestamped transcript as a recording timeline.
func (o Output) Final() timeline.Timeline {
	return timeline.Timeline{RecordingID: o.RecordingID, Sentences: o.Sentences}
}

// Report returns the diagnostics of o.
func (o Output) Report() report.Recording {
	return report.Recording{
		RecordingID:    o.RecordingID,
		Sentences:      len(o.Sentences),
		AlignedRatio:   o.Result.AlignedRatio(),
		Accepted:       len(o.Result.Accepted()),
		Rejected:       o.Result.Rejected(),
		Unmatched:      len(o.Result.Unmatched),
		WindowsMerged:  o.WindowsMerged,
		WindowsSkipped: o.WindowsSkipped,
		CorpusWER:      o.CorpusWER,
	}
}

// Pipeline aligns recordings. It holds no per-recording state and is safe for
// concurrent use.
type Pipeline struct {
	separator string
	extractor *anchor.Extractor
	segmenter *segment.Segmenter
	resolver  overlap.Resolver
	mapper    *timestamp.Mapper
	filter    wer.Filter
	format    textio.SegmentsFormat
	metrics   *observe.Metrics
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a [Pipeline] from the tunables in cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	scorer := cfg.Scorer()
	p := &Pipeline{
		separator: cfg.Tokens.Separator,
		extractor: anchor.NewExtractor(
			anchor.WithScorer(scorer),
			anchor.WithRatioThreshold(cfg.Anchor.RatioThreshold),
			anchor.WithSeparator(cfg.Tokens.Separator),
		),
		segmenter: segment.New(segment.WithWildcard(cfg.Tokens.Wildcard)),
		resolver:  overlap.Resolver{Lookahead: cfg.Overlap.Lookahead},
		mapper: timestamp.New(
			timestamp.WithScorer(scorer),
			timestamp.WithSeparator(cfg.Tokens.Separator),
		),
		filter: wer.Filter{Threshold: cfg.Filter.WERThreshold, MaxDuration: cfg.Filter.MaxDuration},
		format: cfg.SegmentsFormat,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Align runs the whole alignment of one recording. Only a missing reference
// or decoded text fails it; unmatched windows and segments are absorbed and
// counted in the output.
func (p *Pipeline) Align(ctx context.Context, in Inputs) (Output, error) {
	if len(in.Reference) == 0 {
		return Output{}, fmt.Errorf("%w: recording %s has no reference sentences", ErrMissingReference, in.RecordingID)
	}
	if len(in.Texts) == 0 {
		return Output{}, fmt.Errorf("%w: recording %s has no decoded text", ErrMissingReference, in.RecordingID)
	}

	out := Output{RecordingID: in.RecordingID}
	if in.Windows != nil {
		if err := p.buildWindowed(ctx, in, &out); err != nil {
			return Output{}, err
		}
	} else {
		out.Timeline = referenceTimeline(in)
	}

	_, end := observe.StartStage(ctx, p.metrics, observe.StageMap)
	out.Result = p.mapper.MapTimeline(out.Timeline, in.Texts, in.Segments)
	out.Sentences = timestamp.Sentences(out.Result)
	out.Filtered = p.filter.Apply(acceptedSegments(out.Result), anchorRecords(out.Result))
	end(nil)

	accepted := len(out.Result.Accepted())
	p.metrics.RecordAnchors(ctx, "accepted", accepted)
	p.metrics.RecordAnchors(ctx, "rejected", out.Result.Rejected())
	p.metrics.RecordAnchors(ctx, "unmatched", len(out.Result.Unmatched))

	out.CorpusWER = corpusWER(out.Sentences, in.Reference)

	observe.Logger(ctx).Info("recording aligned",
		"recording", in.RecordingID,
		"sentences", len(out.Sentences),
		"aligned_ratio", out.Result.AlignedRatio(),
		"accepted", accepted,
		"unmatched", len(out.Result.Unmatched),
	)
	return out, nil
}

// buildWindowed aligns the window stream against the reference, places the
// anchored reference sentences in every window and merges the windows.
func (p *Pipeline) buildWindowed(ctx context.Context, in Inputs, out *Output) error {
	w := in.Windows
	texts := make(map[string][]string, len(w.Texts))
	for _, t := range w.Texts {
		texts[t.ID] = t.Tokens
	}

	groups := make([][]string, len(w.Segments))
	for i, s := range w.Segments {
		groups[i] = texts[s.ID]
	}
	refGroups := make([][]string, len(in.Reference))
	for i, r := range in.Reference {
		refGroups[i] = r.Tokens
	}

	_, end := observe.StartStage(ctx, p.metrics, observe.StageAlign)
	out.Alignment = align.Levenshtein(anchor.Delimit(groups, p.separator), anchor.Delimit(refGroups, p.separator))
	end(nil)

	_, end = observe.StartStage(ctx, p.metrics, observe.StageAnchor)
	out.Anchors = p.extractor.Extract(out.Alignment.Record(in.RecordingID))
	end(nil)

	_, end = observe.StartStage(ctx, p.metrics, observe.StageSegment)
	out.WindowIDs = make([]string, len(w.Segments))
	out.Windows = make([][]timeline.Sentence, len(w.Segments))
	for i, s := range w.Segments {
		out.WindowIDs[i] = s.ID
		lo, hi := 0, len(in.Reference)-1
		if i < len(out.Anchors) && out.Anchors[i].Accepted {
			lo, hi = out.Anchors[i].Lo, out.Anchors[i].Hi
		}
		sents, err := p.timeWindow(s, groups[i], in.Reference, lo, hi, w.Times)
		if err != nil {
			slog.Warn("pipeline: window skipped", "recording", in.RecordingID, "window", s.ID, "err", err)
		}
		if len(sents) == 0 {
			out.WindowsSkipped++
			continue
		}
		out.Windows[i] = sents
		out.WindowsMerged++
	}
	end(nil)

	_, end = observe.StartStage(ctx, p.metrics, observe.StageMerge)
	out.Timeline = timeline.Timeline{RecordingID: in.RecordingID, Sentences: p.resolver.Merge(out.Windows)}
	end(nil)

	p.metrics.RecordWindows(ctx, "merged", out.WindowsMerged)
	p.metrics.RecordWindows(ctx, "skipped", out.WindowsSkipped)
	return nil
}

// timeWindow segments the hypothesis of one window into the reference
// sentences lo..hi and times them in recording time.
func (p *Pipeline) timeWindow(win timeline.Segment, hyp []string, ref []timeline.Transcript, lo, hi int, times map[string]segment.Times) ([]timeline.Sentence, error) {
	if len(hyp) == 0 {
		return nil, nil
	}
	lo, hi = max(lo, 0), min(hi, len(ref)-1)
	if lo > hi {
		return nil, fmt.Errorf("empty sentence range %d..%d", lo, hi)
	}
	tt, ok := times[win.ID]
	if !ok {
		return nil, errors.New("no token times")
	}

	cands := make([][]string, 0, hi-lo+1)
	for _, r := range ref[lo : hi+1] {
		cands = append(cands, r.Tokens)
	}
	res := p.segmenter.Segment(hyp, cands)
	if !res.Complete {
		slog.Debug("pipeline: partial window segmentation", "window", win.ID, "matched", len(res.Matches))
	}
	timed, err := segment.Time(res.Matches, tt, win.Start)
	if err != nil {
		return nil, err
	}

	out := make([]timeline.Sentence, len(timed))
	for i, t := range timed {
		r := ref[lo+t.Sentence]
		out[i] = timeline.Sentence{
			RecordingID: win.RecordingID,
			RefID:       r.ID,
			Start:       t.Start,
			End:         t.End,
			Text:        strings.Join(r.Tokens, " "),
		}
	}
	timeline.Renumber(out, 0)
	return out, nil
}

// referenceTimeline is the untimed timeline of the whole reference script.
func referenceTimeline(in Inputs) timeline.Timeline {
	sents := make([]timeline.Sentence, len(in.Reference))
	for i, r := range in.Reference {
		sents[i] = timeline.Sentence{
			RecordingID: in.RecordingID,
			RefID:       r.ID,
			Text:        strings.Join(r.Tokens, " "),
		}
	}
	timeline.Renumber(sents, 0)
	return timeline.Timeline{RecordingID: in.RecordingID, Sentences: sents}
}

func acceptedSegments(res timestamp.Result) []timeline.Segment {
	acc := res.Accepted()
	out := make([]timeline.Segment, len(acc))
	for i, a := range acc {
		out[i] = a.Segment
	}
	return out
}

// anchorRecords turns the accepted anchors into alignment records keyed by
// segment id.
func anchorRecords(res timestamp.Result) []align.Record {
	acc := res.Accepted()
	out := make([]align.Record, len(acc))
	for i, a := range acc {
		out[i] = align.Record{
			ID:   a.Segment.ID,
			Ref:  a.Ref,
			Hyp:  a.Hyp,
			Ops:  a.Ops,
			CSID: align.CountOps(a.Ops),
		}
	}
	return out
}

// corpusWER scores the final transcript against the reference script, one
// reference sentence at a time.
func corpusWER(sents []timeline.Sentence, ref []timeline.Transcript) float64 {
	var hyp []string
	for _, s := range sents {
		hyp = append(hyp, s.Tokens()...)
	}
	want := make([][]string, len(ref))
	for i, r := range ref {
		want[i] = r.Tokens
	}
	w, err := report.CorpusWER(report.PairSentences(hyp, want))
	if err != nil {
		return -1
	}
	return w
}
