package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/flexalign/internal/timeline"
)

// Schema is the SQL DDL for the alignment_timelines table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS alignment_timelines (
    run_id         TEXT NOT NULL,
    recording_id   TEXT NOT NULL,
    aligned_ratio  DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentence_count INTEGER NOT NULL DEFAULT 0,
    sentences      JSONB NOT NULL DEFAULT '[]',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (run_id, recording_id)
);
CREATE INDEX IF NOT EXISTS idx_alignment_timelines_recording ON alignment_timelines(recording_id, created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Sentences are
// stored as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to dsn, pings it and migrates the schema. The
// returned close function releases the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveTimeline implements [Store].
func (s *PostgresStore) SaveTimeline(ctx context.Context, runID string, tl timeline.Timeline, alignedRatio float64) error {
	sents := tl.Sentences
	if sents == nil {
		sents = []timeline.Sentence{}
	}
	sentJSON, err := json.Marshal(sents)
	if err != nil {
		return fmt.Errorf("store: marshal sentences: %w", err)
	}

	const query = `
		INSERT INTO alignment_timelines (run_id, recording_id, aligned_ratio, sentence_count, sentences)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, recording_id) DO UPDATE SET
			aligned_ratio = EXCLUDED.aligned_ratio,
			sentence_count = EXCLUDED.sentence_count,
			sentences = EXCLUDED.sentences,
			created_at = now()`

	if _, err := s.db.Exec(ctx, query, runID, tl.RecordingID, alignedRatio, len(sents), sentJSON); err != nil {
		return fmt.Errorf("store: save timeline %q: %w", tl.RecordingID, err)
	}
	return nil
}

// GetTimeline implements [Store].
func (s *PostgresStore) GetTimeline(ctx context.Context, recordingID string) (*timeline.Timeline, error) {
	const query = `
		SELECT sentences
		FROM alignment_timelines
		WHERE recording_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var sentJSON []byte
	if err := s.db.QueryRow(ctx, query, recordingID).Scan(&sentJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get timeline %q: %w", recordingID, err)
	}
	tl := timeline.Timeline{RecordingID: recordingID}
	if err := json.Unmarshal(sentJSON, &tl.Sentences); err != nil {
		return nil, fmt.Errorf("store: unmarshal sentences: %w", err)
	}
	return &tl, nil
}

// ListRuns implements [Store].
func (s *PostgresStore) ListRuns(ctx context.Context) ([]Run, error) {
	const query = `
		SELECT run_id, recording_id, aligned_ratio, sentence_count, created_at
		FROM alignment_timelines
		ORDER BY created_at, recording_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.RecordingID, &r.AlignedRatio, &r.Sentences, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list runs scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}
