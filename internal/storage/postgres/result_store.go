package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/seoscope/seoscope/internal/audit"
)

// ResultStore is the Postgres audit.ResultStore. The partial unique index on
// results.job_id makes appends idempotent per job.
type ResultStore struct {
	db    DB
	clock audit.Clock
}

// NewResultStore constructs a ResultStore on an existing pool.
func NewResultStore(db DB, clock audit.Clock) *ResultStore {
	return &ResultStore{db: db, clock: clock}
}

// Append inserts a result. When the job id is already on file the existing
// row is returned untouched.
func (s *ResultStore) Append(ctx context.Context, result audit.Result) (audit.Result, error) {
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return audit.Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	result.CreatedAt = s.clock.Now()
	tag, err := s.db.Exec(ctx, `
INSERT INTO results (id, user_id, job_id, summary, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (job_id) WHERE job_id IS NOT NULL DO NOTHING`,
		result.ID, result.UserID, result.JobID, result.Summary, payload, result.CreatedAt)
	if err != nil {
		return audit.Result{}, fmt.Errorf("insert result: %w", err)
	}
	if tag.RowsAffected() == 1 || result.JobID == nil {
		return result, nil
	}

	existing, err := s.getByJobID(ctx, *result.JobID)
	if err != nil {
		return audit.Result{}, fmt.Errorf("read existing result: %w", err)
	}
	return existing, nil
}

// ListByUser returns the user's results newest-first.
func (s *ResultStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]audit.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, job_id, summary, payload, created_at
FROM results
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Result, 0, limit)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

func (s *ResultStore) getByJobID(ctx context.Context, jobID string) (audit.Result, error) {
	row := s.db.QueryRow(ctx, `
SELECT id, user_id, job_id, summary, payload, created_at
FROM results WHERE job_id = $1`, jobID)
	result, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Result{}, audit.ErrNotFound
	}
	return result, err
}

func scanResult(row pgx.Row) (audit.Result, error) {
	var (
		result  audit.Result
		payload []byte
	)
	if err := row.Scan(&result.ID, &result.UserID, &result.JobID, &result.Summary, &payload, &result.CreatedAt); err != nil {
		return audit.Result{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &result.Payload); err != nil {
			return audit.Result{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return result, nil
}
