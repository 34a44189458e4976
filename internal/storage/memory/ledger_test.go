package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/seoscope/internal/audit"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(newFakeClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))
}

func TestConsumeNeverOverdraws(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "user-1", Email: "u@example.com", Plan: audit.PlanFree, Balance: 10,
	}))

	const attempts = 50
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, _, err := ledger.Consume(ctx, "user-1", 1)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if granted {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	account, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, account.Balance)
}

func TestConsumeInsufficientLeavesBalance(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "user-1", Plan: audit.PlanFree, Balance: 2,
	}))

	granted, balance, err := ledger.Consume(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 2, balance)
}

func TestConsumeUnknownUser(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	_, _, err := ledger.Consume(context.Background(), "ghost", 1)
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestCreateAccountIsIdempotent(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "user-1", Plan: audit.PlanFree, Balance: 20,
	}))
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "user-1", Plan: audit.PlanPro, Balance: 800,
	}))

	account, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, audit.PlanFree, account.Plan)
	assert.Equal(t, 20, account.Balance)
}

func TestResetMonthlySetsPlanAllotments(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "free-user", Plan: audit.PlanFree, Balance: 0,
	}))
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "pro-user", Plan: audit.PlanPro, Balance: 3,
	}))

	reset, err := ledger.ResetMonthly(ctx, audit.PlanAllotments)
	require.NoError(t, err)
	assert.Equal(t, 2, reset)

	free, err := ledger.Balance(ctx, "free-user")
	require.NoError(t, err)
	assert.Equal(t, 20, free.Balance)

	pro, err := ledger.Balance(ctx, "pro-user")
	require.NoError(t, err)
	assert.Equal(t, 800, pro.Balance)
}

func TestGrantAppliesOnce(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateAccount(ctx, audit.CreditAccount{
		UserID: "user-1", Email: "u@example.com", Plan: audit.PlanFree, Balance: 5,
	}))

	require.NoError(t, ledger.Grant(ctx, "evt-1", "u@example.com", audit.PlanPro, 800))
	require.NoError(t, ledger.Grant(ctx, "evt-1", "u@example.com", audit.PlanPro, 800))

	account, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, audit.PlanPro, account.Plan)
	assert.Equal(t, 805, account.Balance)
}

func TestGrantUnknownEmail(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	err := ledger.Grant(context.Background(), "evt-1", "nobody@example.com", audit.PlanPro, 800)
	require.ErrorIs(t, err, audit.ErrNotFound)
}
