package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Relative recording paths are resolved against the directory of
// path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.ResolvePaths(filepath.Dir(path))
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePaths makes every relative recording path relative to dir.
func (c *Config) ResolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Recordings {
		r := &c.Recordings[i]
		r.Reference = abs(r.Reference)
		r.Segments = abs(r.Segments)
		r.Text = abs(r.Text)
		if r.Windows != nil {
			r.Windows.Segments = abs(r.Windows.Segments)
			r.Windows.Text = abs(r.Windows.Text)
			r.Windows.Alignments = abs(r.Windows.Alignments)
		}
	}
	if c.OutputDir != "" {
		c.OutputDir = abs(c.OutputDir)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Tokens
	if cfg.Tokens.Separator == "" {
		errs = append(errs, errors.New("tokens.separator is required"))
	}
	if cfg.Tokens.Wildcard != "" && cfg.Tokens.Wildcard == cfg.Tokens.Separator {
		errs = append(errs, fmt.Errorf("tokens.wildcard %q must differ from tokens.separator", cfg.Tokens.Wildcard))
	}

	// Acceptance thresholds
	if cfg.Match.MinRatio < 0 || cfg.Match.MinRatio > 1 {
		errs = append(errs, fmt.Errorf("match.min_ratio %.2f is out of range [0, 1]", cfg.Match.MinRatio))
	}
	if cfg.Match.MinCorrect < 1 {
		errs = append(errs, fmt.Errorf("match.min_correct %d must be at least 1", cfg.Match.MinCorrect))
	}
	if cfg.Match.MinRun < 1 {
		errs = append(errs, fmt.Errorf("match.min_run %d must be at least 1", cfg.Match.MinRun))
	}
	if cfg.Anchor.RatioThreshold < 0 || cfg.Anchor.RatioThreshold > 1 {
		errs = append(errs, fmt.Errorf("anchor.ratio_threshold %.2f is out of range [0, 1]", cfg.Anchor.RatioThreshold))
	}
	if cfg.Anchor.ScoreThreshold <= 0 || cfg.Anchor.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("anchor.score_threshold %.2f is out of range (0, 1]", cfg.Anchor.ScoreThreshold))
	}
	if cfg.Anchor.CountThreshold < 1 {
		errs = append(errs, fmt.Errorf("anchor.count_threshold %d must be at least 1", cfg.Anchor.CountThreshold))
	}
	if cfg.Anchor.Beam < 1 {
		errs = append(errs, fmt.Errorf("anchor.beam %d must be at least 1", cfg.Anchor.Beam))
	}
	if cfg.Overlap.Lookahead < 1 {
		errs = append(errs, fmt.Errorf("overlap.lookahead %d must be at least 1", cfg.Overlap.Lookahead))
	}

	// Windows and filter
	if cfg.Window.Size <= 0 {
		errs = append(errs, fmt.Errorf("window.size %.2f must be positive", cfg.Window.Size))
	}
	if cfg.Window.Overlap < 0 || cfg.Window.Overlap >= cfg.Window.Size {
		errs = append(errs, fmt.Errorf("window.overlap %.2f must be in [0, window.size)", cfg.Window.Overlap))
	}
	if cfg.Filter.WERThreshold <= 0 {
		errs = append(errs, fmt.Errorf("filter.wer_threshold %.2f must be positive", cfg.Filter.WERThreshold))
	}
	if cfg.Filter.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("filter.max_duration %.2f must be positive", cfg.Filter.MaxDuration))
	}

	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be at least 1", cfg.Workers))
	}
	if cfg.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if cfg.SegmentsFormat != "" && !cfg.SegmentsFormat.IsValid() {
		errs = append(errs, fmt.Errorf("segments_format %q is invalid; valid values: kaldi, json", cfg.SegmentsFormat))
	}

	if cfg.Store.PostgresDSN == "" && len(cfg.Recordings) > 0 {
		slog.Debug("store.postgres_dsn is empty; timelines are kept in memory only")
	}

	// Recordings
	seen := make(map[string]int, len(cfg.Recordings))
	for i, rec := range cfg.Recordings {
		prefix := fmt.Sprintf("recordings[%d]", i)
		if rec.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[rec.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of recordings[%d]", prefix, rec.ID, prev))
			}
			seen[rec.ID] = i
		}
		if rec.Reference == "" {
			errs = append(errs, fmt.Errorf("%s.reference is required", prefix))
		}
		if rec.Segments == "" {
			errs = append(errs, fmt.Errorf("%s.segments is required", prefix))
		}
		if rec.Text == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
		}
		if w := rec.Windows; w != nil {
			if w.Segments == "" || w.Text == "" || w.Alignments == "" {
				errs = append(errs, fmt.Errorf("%s.windows requires segments, text and alignments", prefix))
			}
		}
	}

	return errors.Join(errs...)
}
