package memory

import (
	"context"
	"sync"
	"time"

	"github.com/seoscope/seoscope/internal/audit"
)

// JobStore is an in-memory audit.JobStore. Enqueue debits the ledger and
// Complete appends to the result store under the job mutex, mirroring the
// transactions the Postgres store uses.
type JobStore struct {
	mu      sync.Mutex
	jobs    map[string]audit.Job
	ledger  audit.CreditLedger
	results audit.ResultStore
	clock   audit.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(ledger audit.CreditLedger, results audit.ResultStore, clock audit.Clock) *JobStore {
	return &JobStore{
		jobs:    make(map[string]audit.Job),
		ledger:  ledger,
		results: results,
		clock:   clock,
	}
}

// Enqueue debits cost credits and creates the job in queued status. With an
// insufficient balance nothing is created and nothing is debited.
func (s *JobStore) Enqueue(ctx context.Context, job audit.Job, cost int) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, _, err := s.ledger.Consume(ctx, job.UserID, cost)
	if err != nil {
		return audit.Job{}, err
	}
	if !ok {
		return audit.Job{}, audit.ErrInsufficientCredits
	}

	now := s.clock.Now()
	job.Status = audit.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return job, nil
}

// ClaimNext claims the oldest queued job for workerID.
func (s *JobStore) ClaimNext(_ context.Context, workerID string) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		oldest audit.Job
		found  bool
	)
	for _, job := range s.jobs {
		if job.Status != audit.JobStatusQueued {
			continue
		}
		if !found || job.CreatedAt.Before(oldest.CreatedAt) ||
			(job.CreatedAt.Equal(oldest.CreatedAt) && job.ID < oldest.ID) {
			oldest = job
			found = true
		}
	}
	if !found {
		return audit.Job{}, audit.ErrNoJobs
	}

	now := s.clock.Now()
	oldest.Status = audit.JobStatusProcessing
	oldest.ClaimedBy = workerID
	oldest.ClaimedAt = &now
	oldest.UpdatedAt = now
	s.jobs[oldest.ID] = oldest
	return oldest, nil
}

// Complete settles a processing job and appends its result. Completing an
// already-completed job is a no-op so retried deliveries stay harmless.
func (s *JobStore) Complete(ctx context.Context, jobID, workerID string, result audit.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return audit.ErrNotFound
	}
	if job.Status == audit.JobStatusCompleted {
		return nil
	}
	if job.Status != audit.JobStatusProcessing {
		return audit.ErrNotClaimOwner
	}
	if job.ClaimedBy != workerID {
		return audit.ErrNotClaimOwner
	}

	if _, err := s.results.Append(ctx, result); err != nil {
		return err
	}

	job.Status = audit.JobStatusCompleted
	job.ClaimedBy = ""
	job.ClaimedAt = nil
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return nil
}

// Fail settles a processing job as failed with a reason.
func (s *JobStore) Fail(_ context.Context, jobID, workerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return audit.ErrNotFound
	}
	if audit.IsTerminal(job.Status) {
		return nil
	}
	if job.Status != audit.JobStatusProcessing || job.ClaimedBy != workerID {
		return audit.ErrNotClaimOwner
	}

	job.Status = audit.JobStatusFailed
	job.Reason = reason
	job.ClaimedBy = ""
	job.ClaimedAt = nil
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return nil
}

// Get returns a job scoped to its owner.
func (s *JobStore) Get(_ context.Context, jobID, userID string) (audit.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.UserID != userID {
		return audit.Job{}, audit.ErrNotFound
	}
	return job, nil
}

// RequeueStale recovers jobs stuck in processing longer than olderThan.
func (s *JobStore) RequeueStale(_ context.Context, olderThan time.Duration, maxRequeues int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-olderThan)
	now := s.clock.Now()

	var requeued, failed int
	for id, job := range s.jobs {
		if job.Status != audit.JobStatusProcessing || job.ClaimedAt == nil || !job.ClaimedAt.Before(cutoff) {
			continue
		}
		job.ClaimedBy = ""
		job.ClaimedAt = nil
		job.UpdatedAt = now
		if job.Requeues < maxRequeues {
			job.Requeues++
			job.Status = audit.JobStatusQueued
			requeued++
		} else {
			job.Status = audit.JobStatusFailed
			job.Reason = audit.ReasonStaleClaim
			failed++
		}
		s.jobs[id] = job
	}
	return requeued, failed, nil
}
