package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/seoscope/internal/audit"
)

func TestConsumeDecrementsBalance(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectQuery("UPDATE credit_accounts").
		WithArgs("user-1", 1, testNow).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(4))

	ok, balance, err := ledger.Consume(context.Background(), "user-1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeInsufficientBalance(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectQuery("UPDATE credit_accounts").
		WithArgs("user-1", 5, testNow).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT balance").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(2))

	ok, balance, err := ledger.Consume(context.Background(), "user-1", 5)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeUnknownUser(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectQuery("UPDATE credit_accounts").
		WithArgs("ghost", 1, testNow).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT balance").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, _, err = ledger.Consume(context.Background(), "ghost", 1)
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountConflictIsNoOp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectExec("INSERT INTO credit_accounts").
		WithArgs("user-1", "u@example.com", audit.PlanFree, 20, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = ledger.CreateAccount(context.Background(), audit.CreditAccount{
		UserID: "user-1", Email: "u@example.com", Plan: audit.PlanFree, Balance: 20,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetMonthlySumsAcrossPlans(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs(audit.PlanFree, 20, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 10))
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs(audit.PlanStarter, 200, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs(audit.PlanPro, 800, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs(audit.PlanAgency, 2500, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	reset, err := ledger.ResetMonthly(context.Background(), audit.PlanAllotments)
	require.NoError(t, err)
	require.Equal(t, 17, reset)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantAppliesEventOnce(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_events").
		WithArgs("evt-1", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs("u@example.com", audit.PlanPro, 800, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, ledger.Grant(context.Background(), "evt-1", "u@example.com", audit.PlanPro, 800))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantDuplicateEventIsNoOp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_events").
		WithArgs("evt-1", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	require.NoError(t, ledger.Grant(context.Background(), "evt-1", "u@example.com", audit.PlanPro, 800))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantUnknownEmailRollsBack(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewLedger(mock, staticClock{testNow})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_events").
		WithArgs("evt-1", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE credit_accounts").
		WithArgs("nobody@example.com", audit.PlanPro, 800, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = ledger.Grant(context.Background(), "evt-1", "nobody@example.com", audit.PlanPro, 800)
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
