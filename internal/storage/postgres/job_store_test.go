package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/seoscope/internal/audit"
)

// staticClock pins time for exact argument matching.
type staticClock struct {
	t time.Time
}

func (c staticClock) Now() time.Time {
	return c.t
}

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func jobRows(job audit.Job) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "url", "analysis_type", "fetch_mode", "status",
		"reason", "claimed_by", "claimed_at", "requeues", "created_at", "updated_at",
	}).AddRow(
		job.ID, job.UserID, job.URL, job.Type, job.Mode, job.Status,
		job.Reason, job.ClaimedBy, job.ClaimedAt, job.Requeues, job.CreatedAt, job.UpdatedAt,
	)
}

func TestEnqueueDebitsAndInserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})
	job := audit.Job{
		ID:     "job-1",
		UserID: "user-1",
		URL:    "https://example.com/",
		Type:   audit.AnalysisTechnical,
		Mode:   audit.FetchSimple,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs("user-1", 1, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "user-1", "https://example.com/", audit.AnalysisTechnical, audit.FetchSimple, audit.JobStatusQueued, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := store.Enqueue(context.Background(), job, 1)
	require.NoError(t, err)
	require.Equal(t, audit.JobStatusQueued, created.Status)
	require.Equal(t, testNow, created.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueInsufficientCreditsRollsBack(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs("user-1", 1, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err = store.Enqueue(context.Background(), audit.Job{ID: "job-1", UserID: "user-1"}, 1)
	require.ErrorIs(t, err, audit.ErrInsufficientCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextReturnsClaimedJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})
	claimedAt := testNow
	want := audit.Job{
		ID:        "job-1",
		UserID:    "user-1",
		URL:       "https://example.com/",
		Type:      audit.AnalysisTechnical,
		Mode:      audit.FetchSimple,
		Status:    audit.JobStatusProcessing,
		ClaimedBy: "worker-1",
		ClaimedAt: &claimedAt,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("worker-1", testNow).
		WillReturnRows(jobRows(want))

	got, err := store.ClaimNext(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextEmptyQueue(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("worker-1", testNow).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.ClaimNext(context.Background(), "worker-1")
	require.ErrorIs(t, err, audit.ErrNoJobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteWritesResultAndSettles(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})
	jobID := "job-1"
	result := audit.Result{ID: "res-1", UserID: "user-1", JobID: &jobID, Summary: "No critical issues found"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "claimed_by"}).
			AddRow(audit.JobStatusProcessing, "worker-1"))
	mock.ExpectExec("INSERT INTO results").
		WithArgs("res-1", "user-1", &jobID, "No critical issues found", pgxmock.AnyArg(), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Complete(context.Background(), "job-1", "worker-1", result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteAlreadyCompletedIsNoOp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})
	jobID := "job-1"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "claimed_by"}).
			AddRow(audit.JobStatusCompleted, ""))
	mock.ExpectCommit()

	err = store.Complete(context.Background(), "job-1", "worker-1",
		audit.Result{ID: "res-1", UserID: "user-1", JobID: &jobID})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRejectsOtherWorker(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})
	jobID := "job-1"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "claimed_by"}).
			AddRow(audit.JobStatusProcessing, "worker-1"))
	mock.ExpectRollback()

	err = store.Complete(context.Background(), "job-1", "worker-2",
		audit.Result{ID: "res-1", UserID: "user-1", JobID: &jobID})
	require.ErrorIs(t, err, audit.ErrNotClaimOwner)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailSettlesWithReason(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "worker-1", "http_404", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Fail(context.Background(), "job-1", "worker-1", "http_404"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailAlreadyTerminalIsNoOp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "worker-1", "timeout", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(audit.JobStatusFailed))

	require.NoError(t, store.Fail(context.Background(), "job-1", "worker-1", "timeout"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScopedToOwner(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})

	mock.ExpectQuery("SELECT .+ FROM jobs").
		WithArgs("job-1", "someone-else").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), "job-1", "someone-else")
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueStaleCounts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock, staticClock{testNow})
	cutoff := testNow.Add(-5 * time.Minute)

	mock.ExpectExec("UPDATE jobs").
		WithArgs(cutoff, 1, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("UPDATE jobs").
		WithArgs(cutoff, 1, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	requeued, failed, err := store.RequeueStale(context.Background(), 5*time.Minute, 1)
	require.NoError(t, err)
	require.Equal(t, 2, requeued)
	require.Equal(t, 1, failed)
	require.NoError(t, mock.ExpectationsWereMet())
}
