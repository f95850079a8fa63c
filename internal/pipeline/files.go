package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MrWong99/flexalign/internal/anchor"
	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/segment"
	"github.com/MrWong99/flexalign/internal/textio"
	"github.com/MrWong99/flexalign/internal/timestamp"
	"github.com/MrWong99/flexalign/internal/wer"
)

// Output file names inside a recording's output directory.
const (
	FileAnchor        = "windows.anchor"
	FileAligned       = "windows.aligned"
	FileIndex         = "windows.idx"
	FileTimeline      = "timeline.stm"
	FileDump          = "dump"
	FileSegments      = "segments"
	FileText          = "text"
	FileFinal         = "final.stm"
	FileFiltered      = "segments.filtered"
	FileWER           = "wer"
	DirWindows        = "windows"
	windowStmSuffix   = ".stm"
	outputPermissions = 0o755
)

// Load reads every input file of rc. A missing reference or decoded text file
// yields [ErrMissingReference].
func Load(rc config.RecordingConfig) (Inputs, error) {
	in := Inputs{RecordingID: rc.ID}

	if err := readFile(rc.Reference, true, func(r io.Reader) (err error) {
		in.Reference, err = textio.ReadTranscripts(r, rc.Reference)
		return err
	}); err != nil {
		return Inputs{}, err
	}
	if err := readFile(rc.Text, true, func(r io.Reader) (err error) {
		in.Texts, err = textio.ReadTranscripts(r, rc.Text)
		return err
	}); err != nil {
		return Inputs{}, err
	}
	if err := readFile(rc.Segments, false, func(r io.Reader) (err error) {
		in.Segments, err = textio.ReadSegments(r, rc.Segments)
		return err
	}); err != nil {
		return Inputs{}, err
	}

	if rc.Windows == nil {
		return in, nil
	}
	w := &WindowInputs{}
	if err := readFile(rc.Windows.Segments, false, func(r io.Reader) (err error) {
		w.Segments, err = textio.ReadSegments(r, rc.Windows.Segments)
		return err
	}); err != nil {
		return Inputs{}, err
	}
	if err := readFile(rc.Windows.Text, false, func(r io.Reader) (err error) {
		w.Texts, err = textio.ReadTranscripts(r, rc.Windows.Text)
		return err
	}); err != nil {
		return Inputs{}, err
	}
	if err := readFile(rc.Windows.Alignments, false, func(r io.Reader) (err error) {
		w.Times, err = textio.ReadTimes(r, rc.Windows.Alignments)
		return err
	}); err != nil {
		return Inputs{}, err
	}
	if w.Times == nil {
		w.Times = map[string]segment.Times{}
	}
	in.Windows = w
	return in, nil
}

// readFile opens path and hands it to fn. When pairing is set a missing file
// is reported as [ErrMissingReference].
func readFile(path string, pairing bool, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		if pairing && errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingReference, path)
		}
		return fmt.Errorf("pipeline: open input: %w", err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	return nil
}

// Write stores every view of out below dir, creating it as needed.
func (p *Pipeline) Write(dir string, out Output) error {
	if err := os.MkdirAll(dir, outputPermissions); err != nil {
		return fmt.Errorf("pipeline: create output dir: %w", err)
	}

	if out.Windows != nil {
		meta := out.RecordingID + " windows_vs_reference"
		if err := writeFile(dir, FileAnchor, func(w io.Writer) error {
			return textio.WriteAnchorFile(w, meta, out.Alignment)
		}); err != nil {
			return err
		}
		if err := writeViews(dir, out.Anchors); err != nil {
			return err
		}
		wdir := filepath.Join(dir, DirWindows)
		if err := os.MkdirAll(wdir, outputPermissions); err != nil {
			return fmt.Errorf("pipeline: create windows dir: %w", err)
		}
		for i, sents := range out.Windows {
			if len(sents) == 0 {
				continue
			}
			if err := writeFile(wdir, out.WindowIDs[i]+windowStmSuffix, func(w io.Writer) error {
				return textio.WriteSTM(w, sents)
			}); err != nil {
				return err
			}
		}
	}

	views := []struct {
		name  string
		write func(io.Writer) error
	}{
		{FileTimeline, func(w io.Writer) error { return textio.WriteSTM(w, out.Timeline.Sentences) }},
		{FileDump, func(w io.Writer) error { return timestamp.WriteDump(w, out.Result) }},
		{FileSegments, func(w io.Writer) error { return timestamp.WriteSegments(w, out.Result, p.format) }},
		{FileText, func(w io.Writer) error { return timestamp.WriteText(w, out.Result) }},
		{FileFinal, func(w io.Writer) error { return textio.WriteSTM(w, out.Sentences) }},
		{FileFiltered, func(w io.Writer) error { return textio.WriteSegments(w, out.Filtered, p.format) }},
		{FileWER, func(w io.Writer) error { return scoreAnchors(w, out.Result) }},
	}
	for _, v := range views {
		if err := writeFile(dir, v.name, v.write); err != nil {
			return err
		}
	}
	return nil
}

func writeViews(dir string, anchors []anchor.Anchor) error {
	aligned, err := os.Create(filepath.Join(dir, FileAligned))
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", FileAligned, err)
	}
	defer aligned.Close()
	idx, err := os.Create(filepath.Join(dir, FileIndex))
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", FileIndex, err)
	}
	defer idx.Close()
	if err := anchor.WriteViews(aligned, idx, anchors); err != nil {
		return err
	}
	if err := aligned.Close(); err != nil {
		return fmt.Errorf("pipeline: close %s: %w", FileAligned, err)
	}
	return idx.Close()
}

// scoreAnchors writes the per-segment WER of the accepted anchors.
func scoreAnchors(w io.Writer, res timestamp.Result) error {
	return wer.Score(w, anchorRecords(res))
}

// writeFile creates dir/name and hands it to fn.
func writeFile(dir, name string, fn func(io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", name, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("pipeline: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pipeline: close %s: %w", name, err)
	}
	return nil
}
