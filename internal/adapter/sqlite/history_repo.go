package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vertextoedge/czds-fetch/internal/domain"
)

// CreateRun inserts a new batch run. A missing ID or start time is filled in.
func (s *Store) CreateRun(run *domain.BatchRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO batch_runs (id, started_at, requested)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.Exec(query, run.ID, run.StartedAt.UTC(), run.Requested); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and error of a run
func (s *Store) FinishRun(run *domain.BatchRun) error {
	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	query := `
		UPDATE batch_runs
		SET finished_at = ?, requested = ?, succeeded = ?, failed = ?, error = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query, finishedAt, run.Requested, run.Succeeded, run.Failed, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// RecordOutcome appends the outcome of one zone to a run
func (s *Store) RecordOutcome(rec *domain.OutcomeRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO zone_outcomes (
			run_id, zone, source, file_name, path, size, elapsed_ms,
			error_kind, error_message, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		rec.RunID, rec.Zone, rec.Source, rec.FileName, rec.Path, rec.Size, rec.ElapsedMs,
		string(rec.ErrorKind), rec.ErrorMessage, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", rec.Zone, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*domain.BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, started_at, finished_at, requested, succeeded, failed, error
		FROM batch_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.BatchRun
	for rows.Next() {
		run := &domain.BatchRun{}
		var finishedAt sql.NullTime

		if err := rows.Scan(
			&run.ID, &run.StartedAt, &finishedAt,
			&run.Requested, &run.Succeeded, &run.Failed, &run.Error,
		); err != nil {
			return nil, err
		}

		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListOutcomes returns the outcomes of a run in the order they were recorded
func (s *Store) ListOutcomes(runID string) ([]*domain.OutcomeRecord, error) {
	query := `
		SELECT id, run_id, zone, source, file_name, path, size, elapsed_ms,
			error_kind, error_message, created_at
		FROM zone_outcomes
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.OutcomeRecord
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// LastSuccess returns the most recent successful outcome for a zone
func (s *Store) LastSuccess(zone string) (*domain.OutcomeRecord, error) {
	query := `
		SELECT id, run_id, zone, source, file_name, path, size, elapsed_ms,
			error_kind, error_message, created_at
		FROM zone_outcomes
		WHERE zone = ? AND error_kind = ''
		ORDER BY id DESC
		LIMIT 1
	`

	rec, err := scanOutcome(s.db.QueryRow(query, zone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (*domain.OutcomeRecord, error) {
	rec := &domain.OutcomeRecord{}
	var kind string

	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.Zone, &rec.Source, &rec.FileName, &rec.Path,
		&rec.Size, &rec.ElapsedMs, &kind, &rec.ErrorMessage, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ErrorKind = domain.ErrorKind(kind)
	return rec, nil
}
