package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = "id, root, output_root, started_at, finished_at, total, converted, failed, workers"

const fileColumns = "run_id, source, output, bucket, bucket_fallback, status, error, input_bytes, output_bytes, tags_embedded, duration_ms, recorded_at"

// BeginRun inserts a new run row and returns it with a fresh identifier.
func (s *Store) BeginRun(ctx context.Context, root, outputRoot string, total, workers int) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		Root:       root,
		OutputRoot: outputRoot,
		StartedAt:  time.Now().UTC(),
		Total:      total,
		Workers:    workers,
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (id, root, output_root, started_at, total, workers)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Root,
		run.OutputRoot,
		run.StartedAt.Format(time.RFC3339Nano),
		run.Total,
		run.Workers,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run's end time and final counters.
func (s *Store) FinishRun(ctx context.Context, runID string, converted, failed int) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET finished_at = ?, converted = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		converted,
		failed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordFile appends one conversion attempt to the run's history.
func (s *Store) RecordFile(ctx context.Context, rec FileRecord) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO files (`+fileColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Source,
		nullableString(rec.Output),
		nullableString(rec.Bucket),
		boolToInt(rec.BucketFallback),
		rec.Status,
		nullableString(rec.Error),
		rec.InputBytes,
		rec.OutputBytes,
		rec.TagsEmbedded,
		rec.Duration.Milliseconds(),
		recordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// GetRun fetches one run by identifier, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunFiles returns the file records of one run in insertion order.
func (s *Store) RunFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+fileColumns+` FROM files WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query file records: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file records: %w", err)
	}
	return records, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id          string
		root        string
		outputRoot  string
		startedRaw  string
		finishedRaw sql.NullString
		total       int
		converted   int
		failed      int
		workers     int
	)
	if err := scanner.Scan(
		&id,
		&root,
		&outputRoot,
		&startedRaw,
		&finishedRaw,
		&total,
		&converted,
		&failed,
		&workers,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:         id,
		Root:       root,
		OutputRoot: outputRoot,
		Total:      total,
		Converted:  converted,
		Failed:     failed,
		Workers:    workers,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = finished
		}
	}
	return run, nil
}

func scanFileRecord(scanner interface{ Scan(dest ...any) error }) (*FileRecord, error) {
	var (
		runID          string
		source         string
		output         sql.NullString
		bucket         sql.NullString
		bucketFallback sql.NullInt64
		status         string
		errorMessage   sql.NullString
		inputBytes     int64
		outputBytes    int64
		tagsEmbedded   int
		durationMS     int64
		recordedRaw    string
	)
	if err := scanner.Scan(
		&runID,
		&source,
		&output,
		&bucket,
		&bucketFallback,
		&status,
		&errorMessage,
		&inputBytes,
		&outputBytes,
		&tagsEmbedded,
		&durationMS,
		&recordedRaw,
	); err != nil {
		return nil, err
	}

	rec := &FileRecord{
		RunID:        runID,
		Source:       source,
		Output:       output.String,
		Bucket:       bucket.String,
		Status:       status,
		Error:        errorMessage.String,
		InputBytes:   inputBytes,
		OutputBytes:  outputBytes,
		TagsEmbedded: tagsEmbedded,
		Duration:     time.Duration(durationMS) * time.Millisecond,
	}
	if bucketFallback.Valid {
		rec.BucketFallback = bucketFallback.Int64 != 0
	}
	if recorded, err := parseTimeString(recordedRaw); err == nil {
		rec.RecordedAt = recorded
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
