package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/flexalign/internal/anchor"
	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/overlap"
	"github.com/MrWong99/flexalign/internal/textio"
	"github.com/MrWong99/flexalign/internal/timeline"
	"github.com/MrWong99/flexalign/internal/wer"
	"github.com/MrWong99/flexalign/internal/window"
	"github.com/MrWong99/flexalign/pkg/align"
)

// tunables loads the config at path, or the defaults when path is empty.
func tunables(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

// runLevenshtein aligns two transcript files, each delimited into one
// separator-framed stream, and writes the anchor file.
func runLevenshtein(args []string) error {
	fs := flag.NewFlagSet("levenshtein", flag.ContinueOnError)
	hypPath := fs.String("hyp", "", "hypothesis transcript file")
	refPath := fs.String("ref", "", "reference transcript file")
	outPath := fs.String("out", "", "anchor file to write")
	meta := fs.String("meta", "", "metadata line (default: <hyp>_vs_<ref>)")
	configPath := fs.String("config", "", "optional YAML configuration for the separator token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *hypPath == "" || *refPath == "" || *outPath == "" {
		return fmt.Errorf("-hyp, -ref and -out are required")
	}
	cfg, err := tunables(*configPath)
	if err != nil {
		return err
	}

	hyp, err := readStream(*hypPath, cfg.Tokens.Separator)
	if err != nil {
		return err
	}
	ref, err := readStream(*refPath, cfg.Tokens.Separator)
	if err != nil {
		return err
	}
	if *meta == "" {
		*meta = baseName(*hypPath) + "_vs_" + baseName(*refPath)
	}

	al := align.Levenshtein(hyp, ref)
	return writeTo(*outPath, func(w io.Writer) error {
		return textio.WriteAnchorFile(w, *meta, al)
	})
}

// readStream reads a transcript file into one separator-delimited stream.
func readStream(path, sep string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ts, err := textio.ReadTranscripts(f, path)
	if err != nil {
		return nil, err
	}
	groups := make([][]string, len(ts))
	for i, t := range ts {
		groups[i] = t.Tokens
	}
	return anchor.Delimit(groups, sep), nil
}

// runAnchor extracts the anchors of one anchor file and writes the
// <name>.aligned and <name>.idx views.
func runAnchor(args []string) error {
	fs := flag.NewFlagSet("anchor", flag.ContinueOnError)
	inPath := fs.String("in", "", "anchor file")
	outDir := fs.String("out", "", "output directory")
	configPath := fs.String("config", "", "optional YAML configuration for the thresholds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outDir == "" {
		return fmt.Errorf("-in and -out are required")
	}
	cfg, err := tunables(*configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(*inPath)
	if err != nil {
		return err
	}
	defer f.Close()
	name := baseName(*inPath)
	af, err := textio.ReadAnchorFile(f, name)
	if err != nil {
		return err
	}

	ex := anchor.NewExtractor(
		anchor.WithScorer(cfg.Scorer()),
		anchor.WithRatioThreshold(cfg.Anchor.RatioThreshold),
		anchor.WithSeparator(cfg.Tokens.Separator),
	)
	anchors := ex.Extract(af.Record)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	aligned, err := os.Create(filepath.Join(*outDir, name+".aligned"))
	if err != nil {
		return err
	}
	defer aligned.Close()
	idx, err := os.Create(filepath.Join(*outDir, name+".idx"))
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := anchor.WriteViews(aligned, idx, anchors); err != nil {
		return err
	}
	if err := aligned.Close(); err != nil {
		return err
	}
	return idx.Close()
}

// runMerge folds the *.stm files of a directory, in name order, into one
// recording timeline.
func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	inDir := fs.String("in", "", "directory of window stm files")
	outPath := fs.String("out", "", "merged stm file")
	lookahead := fs.Int("lookahead", 0, "sentences of the later window searched for an anchor (default: overlap.lookahead)")
	configPath := fs.String("config", "", "optional YAML configuration for the lookahead default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inDir == "" || *outPath == "" {
		return fmt.Errorf("-in and -out are required")
	}
	cfg, err := tunables(*configPath)
	if err != nil {
		return err
	}
	if !setFlags(fs)["lookahead"] {
		*lookahead = cfg.Overlap.Lookahead
	}

	paths, err := filepath.Glob(filepath.Join(*inDir, "*.stm"))
	if err != nil {
		return err
	}
	windows := make([][]timeline.Sentence, 0, len(paths))
	for _, p := range paths {
		sents, err := readSTM(p)
		if err != nil {
			return err
		}
		windows = append(windows, sents)
	}

	merged := overlap.Resolver{Lookahead: *lookahead}.Merge(windows)
	return writeTo(*outPath, func(w io.Writer) error {
		return textio.WriteSTM(w, merged)
	})
}

func readSTM(path string) ([]timeline.Sentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return textio.ReadSTM(f, path)
}

// runWER writes the WER of every utterance of a Kaldi alignment details file.
func runWER(args []string) error {
	fs := flag.NewFlagSet("wer", flag.ContinueOnError)
	inPath := fs.String("in", "", "wer_per_utt_details file")
	outPath := fs.String("out", "", "per-utterance WER file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return fmt.Errorf("-in and -out are required")
	}

	f, err := os.Open(*inPath)
	if err != nil {
		return err
	}
	defer f.Close()
	recs, err := textio.ReadDetails(f, *inPath, textio.KaldiEpsilon)
	if err != nil {
		return err
	}
	return writeTo(*outPath, func(w io.Writer) error {
		return wer.Score(w, recs)
	})
}

// runReseg cuts the recordings of a segments file into sliding windows. The
// window flags default to the window section of -config.
func runReseg(args []string) error {
	fs := flag.NewFlagSet("reseg", flag.ContinueOnError)
	segPath := fs.String("segments", "", "voice activity segments file")
	outPath := fs.String("out", "", "window segments file")
	size := fs.Float64("size", 0, "window length in seconds (default: window.size)")
	ovl := fs.Float64("overlap", 0, "overlap of consecutive windows in seconds (default: window.overlap)")
	useVAD := fs.Bool("vad", false, "cut at voice activity segment ends (default: window.use_vad)")
	configPath := fs.String("config", "", "optional YAML configuration for the window defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *segPath == "" || *outPath == "" {
		return fmt.Errorf("-segments and -out are required")
	}
	cfg, err := tunables(*configPath)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if !set["size"] {
		*size = cfg.Window.Size
	}
	if !set["overlap"] {
		*ovl = cfg.Window.Overlap
	}
	if !set["vad"] {
		*useVAD = cfg.Window.UseVAD
	}

	f, err := os.Open(*segPath)
	if err != nil {
		return err
	}
	defer f.Close()
	segs, err := textio.ReadSegments(f, *segPath)
	if err != nil {
		return err
	}

	var windows []timeline.Segment
	for _, rec := range byRecording(segs) {
		w, err := window.Slide(rec, *size, *ovl, *useVAD)
		if err != nil {
			return err
		}
		windows = append(windows, w...)
	}
	return writeTo(*outPath, func(w io.Writer) error {
		return textio.WriteSegments(w, windows, textio.FormatKaldi)
	})
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// byRecording groups segments by recording id in order of first appearance.
func byRecording(segs []timeline.Segment) [][]timeline.Segment {
	index := make(map[string]int)
	var out [][]timeline.Segment
	for _, s := range segs {
		i, ok := index[s.RecordingID]
		if !ok {
			i = len(out)
			index[s.RecordingID] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], s)
	}
	return out
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// writeTo creates path and hands it to fn.
func writeTo(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
