package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/seoscope/seoscope/internal/audit"
)

const jobColumns = `id, user_id, url, analysis_type, fetch_mode, status,
	COALESCE(reason, ''), COALESCE(claimed_by, ''), claimed_at, requeues, created_at, updated_at`

// JobStore is the Postgres audit.JobStore. Claim exclusivity comes from
// FOR UPDATE SKIP LOCKED, settle idempotency from conditional updates and the
// partial unique index on results.job_id.
type JobStore struct {
	db    DB
	clock audit.Clock
}

// NewJobStore constructs a JobStore on an existing pool.
func NewJobStore(db DB, clock audit.Clock) *JobStore {
	return &JobStore{db: db, clock: clock}
}

// Enqueue debits the owner and inserts the job inside one transaction, so a
// rejected debit never leaves a job behind.
func (s *JobStore) Enqueue(ctx context.Context, job audit.Job, cost int) (audit.Job, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return audit.Job{}, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.clock.Now()
	tag, err := tx.Exec(ctx, `
UPDATE credit_accounts
SET balance = balance - $2, updated_at = $3
WHERE user_id = $1 AND balance >= $2`,
		job.UserID, cost, now)
	if err != nil {
		return audit.Job{}, fmt.Errorf("debit credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return audit.Job{}, audit.ErrInsufficientCredits
	}

	job.Status = audit.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	if _, err := tx.Exec(ctx, `
INSERT INTO jobs (id, user_id, url, analysis_type, fetch_mode, status, requeues, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`,
		job.ID, job.UserID, job.URL, job.Type, job.Mode, job.Status, now); err != nil {
		return audit.Job{}, fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return audit.Job{}, fmt.Errorf("commit enqueue tx: %w", err)
	}
	return job, nil
}

// ClaimNext claims the oldest queued job. SKIP LOCKED keeps concurrent
// workers from blocking on or double-claiming the same row.
func (s *JobStore) ClaimNext(ctx context.Context, workerID string) (audit.Job, error) {
	now := s.clock.Now()
	row := s.db.QueryRow(ctx, `
UPDATE jobs
SET status = 'processing', claimed_by = $1, claimed_at = $2, updated_at = $2
WHERE id = (
	SELECT id FROM jobs
	WHERE status = 'queued'
	ORDER BY created_at, id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING `+jobColumns,
		workerID, now)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Job{}, audit.ErrNoJobs
	}
	if err != nil {
		return audit.Job{}, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete settles a processing job and writes its result in one transaction.
// A second completion of the same job commits without touching anything.
func (s *JobStore) Complete(ctx context.Context, jobID, workerID string, result audit.Result) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status    audit.JobStatus
		claimedBy string
	)
	err = tx.QueryRow(ctx, `
SELECT status, COALESCE(claimed_by, '') FROM jobs WHERE id = $1 FOR UPDATE`, jobID).
		Scan(&status, &claimedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock job: %w", err)
	}
	if status == audit.JobStatusCompleted {
		return tx.Commit(ctx)
	}
	if status != audit.JobStatusProcessing || claimedBy != workerID {
		return audit.ErrNotClaimOwner
	}

	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO results (id, user_id, job_id, summary, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (job_id) WHERE job_id IS NOT NULL DO NOTHING`,
		result.ID, result.UserID, result.JobID, result.Summary, payload, s.clock.Now()); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if _, err := tx.Exec(ctx, `
UPDATE jobs
SET status = 'completed', claimed_by = NULL, claimed_at = NULL, updated_at = $2
WHERE id = $1`,
		jobID, s.clock.Now()); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete tx: %w", err)
	}
	return nil
}

// Fail settles a processing job as failed with a reason.
func (s *JobStore) Fail(ctx context.Context, jobID, workerID, reason string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE jobs
SET status = 'failed', reason = $3, claimed_by = NULL, claimed_at = NULL, updated_at = $4
WHERE id = $1 AND status = 'processing' AND claimed_by = $2`,
		jobID, workerID, reason, s.clock.Now())
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status audit.JobStatus
	err = s.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job status: %w", err)
	}
	if audit.IsTerminal(status) {
		return nil
	}
	return audit.ErrNotClaimOwner
}

// Get returns a job scoped to its owner.
func (s *JobStore) Get(ctx context.Context, jobID, userID string) (audit.Job, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, jobID, userID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Job{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RequeueStale recovers jobs whose claim is older than olderThan. Jobs with
// re-queue budget left go back to the queue, the rest fail with stale_claim.
func (s *JobStore) RequeueStale(ctx context.Context, olderThan time.Duration, maxRequeues int) (int, int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-olderThan)

	requeueTag, err := s.db.Exec(ctx, `
UPDATE jobs
SET status = 'queued', requeues = requeues + 1, claimed_by = NULL, claimed_at = NULL, updated_at = $3
WHERE status = 'processing' AND claimed_at < $1 AND requeues < $2`,
		cutoff, maxRequeues, now)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stale jobs: %w", err)
	}

	failTag, err := s.db.Exec(ctx, `
UPDATE jobs
SET status = 'failed', reason = 'stale_claim', claimed_by = NULL, claimed_at = NULL, updated_at = $3
WHERE status = 'processing' AND claimed_at < $1 AND requeues >= $2`,
		cutoff, maxRequeues, now)
	if err != nil {
		return int(requeueTag.RowsAffected()), 0, fmt.Errorf("fail stale jobs: %w", err)
	}

	return int(requeueTag.RowsAffected()), int(failTag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (audit.Job, error) {
	var job audit.Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.URL,
		&job.Type,
		&job.Mode,
		&job.Status,
		&job.Reason,
		&job.ClaimedBy,
		&job.ClaimedAt,
		&job.Requeues,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	return job, err
}
