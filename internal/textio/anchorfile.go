package textio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MrWong99/flexalign/pkg/align"
)

const (
	// anchorMagic prefixes the version line of an anchor file.
	anchorMagic = "#flexalign-anchor"

	// AnchorVersion is the version written by [WriteAnchorFile].
	AnchorVersion = 1
)

// ErrUnsupportedVersion is returned for anchor files with an unknown version.
var ErrUnsupportedVersion = errors.New("textio: unsupported anchor file version")

// AnchorFile is the persisted result of aligning one hypothesis against one
// reference.
type AnchorFile struct {
	// Version is 0 for files written without a version line.
	Version int

	// Meta is free text, typically naming the paired input files.
	Meta string

	Distance int
	HypLen   int
	RefLen   int

	// Record holds the alignment with bracket markers removed.
	Record align.Record
}

// WriteAnchorFile writes al in the current anchor file version:
//
//	#flexalign-anchor v1
//	<meta>
//	<distance> <len(hyp)> <len(ref)>
//	<bracketed hyp tokens>
//	<bracketed ref tokens>
func WriteAnchorFile(w io.Writer, meta string, al align.Alignment) error {
	hyp, ref := al.Bracketed()
	hypLen := len(align.StripEpsilon(al.A))
	refLen := len(align.StripEpsilon(al.B))

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s v%d\n", anchorMagic, AnchorVersion)
	fmt.Fprintln(bw, strings.Join(strings.Fields(meta), " "))
	fmt.Fprintf(bw, "%d %d %d\n", al.Distance, hypLen, refLen)
	fmt.Fprintln(bw, strings.Join(hyp, " "))
	fmt.Fprintln(bw, strings.Join(ref, " "))
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("textio: write anchor file: %w", err)
	}
	return nil
}

// ReadAnchorFile parses an anchor file of version 1, or a legacy file without
// a version line. The record is given id. Unlike the line readers, any
// structural problem fails the whole file.
func ReadAnchorFile(r io.Reader, id string) (AnchorFile, error) {
	sc := newScanner(r)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return AnchorFile{}, fmt.Errorf("textio: read anchor file %s: %w", id, err)
	}

	var af AnchorFile
	if len(lines) > 0 && strings.HasPrefix(lines[0], anchorMagic) {
		v, err := parseAnchorVersion(lines[0])
		if err != nil {
			return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, err)
		}
		af.Version = v
		lines = lines[1:]
	}
	if len(lines) < 4 {
		return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("%d lines, want 4 after the version", len(lines)))
	}
	af.Meta = lines[0]

	header := strings.Fields(lines[1])
	if len(header) != 3 {
		return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("header %q", lines[1]))
	}
	nums := make([]int, 3)
	for i, h := range header {
		n, err := strconv.Atoi(h)
		if err != nil {
			return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("header field %q", h))
		}
		nums[i] = n
	}
	af.Distance, af.HypLen, af.RefLen = nums[0], nums[1], nums[2]

	hyp, ref := strings.Fields(lines[2]), strings.Fields(lines[3])
	if len(hyp) != len(ref) {
		return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("traceback lengths %d and %d differ", len(hyp), len(ref)))
	}
	for i := range hyp {
		if isMark(hyp[i]) != isMark(ref[i]) {
			return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("bracket mismatch at token %d", i))
		}
	}
	rec, err := align.NewRecord(id, align.Unbracket(ref), align.Unbracket(hyp))
	if err != nil {
		return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, err)
	}
	if af.Version > 0 {
		if got := rec.CSID.S + rec.CSID.I + rec.CSID.D; got != af.Distance {
			return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("distance %d disagrees with traceback cost %d", af.Distance, got))
		}
		if rec.CSID.HypLen() != af.HypLen || rec.CSID.RefLen() != af.RefLen {
			return AnchorFile{}, fmt.Errorf("textio: anchor file %s: %w", id, malformed("lengths %d/%d disagree with traceback %d/%d",
				af.HypLen, af.RefLen, rec.CSID.HypLen(), rec.CSID.RefLen()))
		}
	}
	af.Record = rec
	return af, nil
}

func parseAnchorVersion(line string) (int, error) {
	f := strings.Fields(line)
	if len(f) != 2 || f[0] != anchorMagic || !strings.HasPrefix(f[1], "v") {
		return 0, malformed("version line %q", line)
	}
	v, err := strconv.Atoi(strings.TrimPrefix(f[1], "v"))
	if err != nil {
		return 0, malformed("version %q", f[1])
	}
	if v != AnchorVersion {
		return 0, fmt.Errorf("%w: v%d", ErrUnsupportedVersion, v)
	}
	return v, nil
}

func isMark(t string) bool {
	return t == align.OpenMark || t == align.CloseMark
}
