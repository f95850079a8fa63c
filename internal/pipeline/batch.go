package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/health"
	"github.com/MrWong99/flexalign/internal/observe"
	"github.com/MrWong99/flexalign/internal/report"
	"github.com/MrWong99/flexalign/internal/store"
)

// FileReport is the batch summary written to the output directory.
const FileReport = "report.json"

// Process loads, aligns and writes one recording below outDir/<id>.
func (p *Pipeline) Process(ctx context.Context, rc config.RecordingConfig, outDir string) (Output, error) {
	in, err := Load(rc)
	if err != nil {
		return Output{}, err
	}
	out, err := p.Align(ctx, in)
	if err != nil {
		return Output{}, err
	}
	if err := p.Write(filepath.Join(outDir, rc.ID), out); err != nil {
		return Output{}, err
	}
	return out, nil
}

// Batch processes many recordings with a bounded number of workers. A failed
// recording is reported and never stops the others.
type Batch struct {
	pipeline *Pipeline
	store    store.Store
	outDir   string
	workers  int
	metrics  *observe.Metrics
	progress *health.Progress
	runID    string
}

// BatchOption configures a [Batch].
type BatchOption func(*Batch)

// WithWorkers bounds the number of recordings processed concurrently.
// Default: 1.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) { b.workers = n }
}

// WithBatchMetrics overrides the metrics instance. Default:
// [observe.DefaultMetrics].
func WithBatchMetrics(m *observe.Metrics) BatchOption {
	return func(b *Batch) { b.metrics = m }
}

// WithProgress reports finished recordings to pr.
func WithProgress(pr *health.Progress) BatchOption {
	return func(b *Batch) { b.progress = pr }
}

// WithRunID sets the id every stored timeline of a run is saved under.
// Default: a fresh id per [Batch.Run].
func WithRunID(id string) BatchOption {
	return func(b *Batch) { b.runID = id }
}

// NewBatch returns a [Batch] writing below outDir and saving every timeline
// to st.
func NewBatch(p *Pipeline, st store.Store, outDir string, opts ...BatchOption) *Batch {
	b := &Batch{pipeline: p, store: st, outDir: outDir, workers: 1}
	for _, o := range opts {
		o(b)
	}
	if b.workers < 1 {
		b.workers = 1
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	if b.progress == nil {
		b.progress = &health.Progress{}
	}
	return b
}

// Run processes recs and writes the batch summary to outDir/report.json. The
// returned diagnostics are in input order. Only cancellation of ctx or a
// failure to write the summary is returned as an error.
func (b *Batch) Run(ctx context.Context, recs []config.RecordingConfig) (report.Summary, []report.Recording, error) {
	runID := b.runID
	if runID == "" {
		runID = store.NewRunID()
	}
	results := make([]report.Recording, len(recs))
	b.progress.Start(len(recs))

	slog.Info("batch started", "run_id", runID, "recordings", len(recs), "workers", b.workers)
	start := time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workers)
	for i, rc := range recs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = b.runOne(egCtx, runID, rc)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return report.Summary{}, nil, fmt.Errorf("pipeline: batch: %w", err)
	}

	sum := report.Summarize(results)
	if err := b.writeReport(sum, results); err != nil {
		return sum, results, err
	}
	slog.Info("batch finished",
		"run_id", runID,
		"recordings", sum.Recordings,
		"failed", sum.Failed,
		"duration", time.Since(start),
	)
	return sum, results, nil
}

// runOne processes one recording and converts any failure into its report
// entry.
func (b *Batch) runOne(ctx context.Context, runID string, rc config.RecordingConfig) report.Recording {
	ctx, span := observe.StartSpan(ctx, "recording",
		trace.WithAttributes(attribute.String("recording", rc.ID)))
	defer span.End()

	b.metrics.ActiveRecordings.Add(ctx, 1)
	defer b.metrics.ActiveRecordings.Add(ctx, -1)

	out, err := b.pipeline.Process(ctx, rc, b.outDir)
	if err == nil {
		err = b.store.SaveTimeline(ctx, runID, out.Final(), out.Result.AlignedRatio())
	}

	rep := out.Report()
	rep.RecordingID = rc.ID
	rep.RunID = runID
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("recording failed", "recording", rc.ID, "err", err)
		rep.Error = err.Error()
	}
	b.metrics.RecordRecording(ctx, err, rep.AlignedRatio)
	b.progress.Finish(err)
	return rep
}

func (b *Batch) writeReport(sum report.Summary, recs []report.Recording) error {
	if err := os.MkdirAll(b.outDir, outputPermissions); err != nil {
		return fmt.Errorf("pipeline: create output dir: %w", err)
	}
	return writeFile(b.outDir, FileReport, func(w io.Writer) error {
		return report.Write(w, sum, recs)
	})
}
