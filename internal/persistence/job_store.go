package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cel-labs/cel-translate/internal/jobs"
)

// JobStore implements jobs.Store on SQLite. Timestamps are persisted as
// integer nanoseconds so the optimistic-concurrency comparison on
// updated_at is exact.
type JobStore struct {
	db *sql.DB
}

func (s *JobStore) CreateJob(ctx context.Context, job *jobs.Job) error {
	stepsJSON, resultsJSON, logJSON, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, document_id, target_language, mode, status, steps_json, results_json, retries, log_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.DocumentID,
		job.TargetLanguage,
		string(job.Mode),
		string(job.Status),
		stepsJSON,
		resultsJSON,
		job.Retries,
		logJSON,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, document_id, target_language, mode, status, steps_json, results_json, retries, log_json, created_at, updated_at
		 FROM jobs
		 WHERE id = ?`,
		id,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, jobs.ErrNotFound
	}
	return job, err
}

func (s *JobStore) ListJobs(ctx context.Context) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, document_id, target_language, mode, status, steps_json, results_json, retries, log_json, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// UpdateJob overwrites the record only when the persisted updated_at still
// matches expectedUpdatedAt. A zero-row update is disambiguated into
// ErrNotFound or ErrStaleJob by re-checking existence.
func (s *JobStore) UpdateJob(ctx context.Context, job *jobs.Job, expectedUpdatedAt time.Time) error {
	stepsJSON, resultsJSON, logJSON, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET
			document_id = ?,
			target_language = ?,
			mode = ?,
			status = ?,
			steps_json = ?,
			results_json = ?,
			retries = ?,
			log_json = ?,
			updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		job.DocumentID,
		job.TargetLanguage,
		string(job.Mode),
		string(job.Status),
		stepsJSON,
		resultsJSON,
		job.Retries,
		logJSON,
		job.UpdatedAt.UnixNano(),
		job.ID,
		expectedUpdatedAt.UnixNano(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id = ?`, job.ID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return jobs.ErrNotFound
	}
	return jobs.ErrStaleJob
}

func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func marshalJobBlobs(job *jobs.Job) (stepsJSON, resultsJSON, logJSON string, err error) {
	if job == nil {
		return "", "", "", fmt.Errorf("job is nil")
	}
	steps, err := json.Marshal(job.Steps)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal steps: %w", err)
	}
	results, err := json.Marshal(job.Results)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal results: %w", err)
	}
	logEntries, err := json.Marshal(job.Log)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal log: %w", err)
	}
	return string(steps), string(results), string(logEntries), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var item jobs.Job
	var mode, status, stepsJSON, resultsJSON, logJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.TargetLanguage,
		&mode,
		&status,
		&stepsJSON,
		&resultsJSON,
		&item.Retries,
		&logJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	item.Mode = jobs.Mode(mode)
	item.Status = jobs.Status(status)
	if err := json.Unmarshal([]byte(stepsJSON), &item.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &item.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	if err := json.Unmarshal([]byte(logJSON), &item.Log); err != nil {
		return nil, fmt.Errorf("unmarshal log: %w", err)
	}
	item.CreatedAt = time.Unix(0, createdAt)
	item.UpdatedAt = time.Unix(0, updatedAt)
	return &item, nil
}
