package audit

import (
	"context"
	"time"
)

// JobStore persists jobs and drives the status state machine. All claim and
// settle operations must be atomic: no two workers may claim the same job,
// and settling is idempotent to tolerate at-least-once delivery.
type JobStore interface {
	// Enqueue debits cost credits from the job's owner and creates the job
	// in a single atomic step. Returns ErrInsufficientCredits without
	// creating the job or debiting when the balance is too low.
	Enqueue(ctx context.Context, job Job, cost int) (Job, error)

	// ClaimNext atomically claims the oldest queued job for workerID,
	// transitioning it to processing. Returns ErrNoJobs when the queue is
	// empty.
	ClaimNext(ctx context.Context, workerID string) (Job, error)

	// Complete writes the result and transitions the job to completed.
	// Only legal from processing by the claiming worker; calling it again
	// for an already-completed job is a no-op.
	Complete(ctx context.Context, jobID, workerID string, result Result) error

	// Fail transitions processing -> failed, recording a reason.
	Fail(ctx context.Context, jobID, workerID, reason string) error

	// Get returns a job scoped to its owner.
	Get(ctx context.Context, jobID, userID string) (Job, error)

	// RequeueStale recovers jobs stuck in processing longer than olderThan:
	// jobs under maxRequeues attempts go back to queued, the rest are
	// failed with reason stale_claim. Returns the number re-queued and the
	// number failed.
	RequeueStale(ctx context.Context, olderThan time.Duration, maxRequeues int) (requeued, failed int, err error)
}

// ResultStore is the append-only history of analysis results.
type ResultStore interface {
	// Append inserts a result. An append whose job id is already present
	// returns the existing row instead of creating a duplicate.
	Append(ctx context.Context, result Result) (Result, error)

	// ListByUser returns the user's results newest-first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Result, error)
}

// CreditLedger owns every mutation of credit balances.
type CreditLedger interface {
	// CreateAccount registers a new account with its signup allotment.
	CreateAccount(ctx context.Context, account CreditAccount) error

	// Consume atomically checks balance >= amount and decrements. Returns
	// the outcome and the balance after the operation; the balance is
	// unchanged when the outcome is false.
	Consume(ctx context.Context, userID string, amount int) (bool, int, error)

	// Balance returns the account for userID.
	Balance(ctx context.Context, userID string) (CreditAccount, error)

	// ResetMonthly sets every account's balance to its plan allotment.
	// Per-account updates are independent; a partial failure leaves the
	// already-reset accounts in place. Returns the number of accounts reset.
	ResetMonthly(ctx context.Context, allotments map[Plan]int) (int, error)

	// Grant upgrades the account matching email to plan and adds amount
	// credits. Deduplicated on eventID: replaying a delivered billing
	// event is a no-op.
	Grant(ctx context.Context, eventID, email string, plan Plan, amount int) error
}

// Fetcher retrieves a page and extracts its raw signals. The returned body is
// the raw HTML for archival; failures are always *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (PageSnapshot, []byte, error)
}

// Analyzer turns a snapshot into a typed payload. Implementations must be
// pure: identical input yields identical output, and missing snapshot fields
// produce findings rather than errors.
type Analyzer interface {
	Analyze(snapshot PageSnapshot, typ AnalysisType) Payload
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes job-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and result IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
