package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/seoscope/seoscope/internal/audit"
)

// Ledger is the Postgres audit.CreditLedger. Consume relies on a conditional
// single-statement decrement so two racing requests can never overdraw.
type Ledger struct {
	db    DB
	clock audit.Clock
}

// NewLedger constructs a Ledger on an existing pool.
func NewLedger(db DB, clock audit.Clock) *Ledger {
	return &Ledger{db: db, clock: clock}
}

// CreateAccount registers an account; re-creating an existing user is a no-op.
func (l *Ledger) CreateAccount(ctx context.Context, account audit.CreditAccount) error {
	_, err := l.db.Exec(ctx, `
INSERT INTO credit_accounts (user_id, email, plan, balance, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO NOTHING`,
		account.UserID, account.Email, account.Plan, account.Balance, l.clock.Now())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Consume atomically checks and decrements the balance.
func (l *Ledger) Consume(ctx context.Context, userID string, amount int) (bool, int, error) {
	var balance int
	err := l.db.QueryRow(ctx, `
UPDATE credit_accounts
SET balance = balance - $2, updated_at = $3
WHERE user_id = $1 AND balance >= $2
RETURNING balance`,
		userID, amount, l.clock.Now()).Scan(&balance)
	if err == nil {
		return true, balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, 0, fmt.Errorf("consume credits: %w", err)
	}

	// Either the user is unknown or the balance is too low.
	err = l.db.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE user_id = $1`, userID).
		Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, audit.ErrNotFound
	}
	if err != nil {
		return false, 0, fmt.Errorf("read balance: %w", err)
	}
	return false, balance, nil
}

// Balance returns the account for userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (audit.CreditAccount, error) {
	var account audit.CreditAccount
	err := l.db.QueryRow(ctx, `
SELECT user_id, email, plan, balance, updated_at
FROM credit_accounts WHERE user_id = $1`, userID).
		Scan(&account.UserID, &account.Email, &account.Plan, &account.Balance, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.CreditAccount{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.CreditAccount{}, fmt.Errorf("read account: %w", err)
	}
	return account, nil
}

// ResetMonthly sets every account's balance to its plan allotment. Each plan
// is one independent statement, so a mid-run failure leaves the plans already
// processed reset.
func (l *Ledger) ResetMonthly(ctx context.Context, allotments map[audit.Plan]int) (int, error) {
	total := 0
	now := l.clock.Now()
	for _, plan := range []audit.Plan{audit.PlanFree, audit.PlanStarter, audit.PlanPro, audit.PlanAgency} {
		allotment, ok := allotments[plan]
		if !ok {
			continue
		}
		tag, err := l.db.Exec(ctx, `
UPDATE credit_accounts SET balance = $2, updated_at = $3 WHERE plan = $1`,
			plan, allotment, now)
		if err != nil {
			return total, fmt.Errorf("reset plan %s: %w", plan, err)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

// Grant applies a billing event exactly once. The insert into billing_events
// is the dedup gate: a replayed event id conflicts and commits unchanged.
func (l *Ledger) Grant(ctx context.Context, eventID, email string, plan audit.Plan, amount int) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin grant tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
INSERT INTO billing_events (id, processed_at) VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`,
		eventID, l.clock.Now())
	if err != nil {
		return fmt.Errorf("record billing event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	tag, err = tx.Exec(ctx, `
UPDATE credit_accounts
SET plan = $2, balance = balance + $3, updated_at = $4
WHERE email = $1`,
		email, plan, amount, l.clock.Now())
	if err != nil {
		return fmt.Errorf("apply grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return audit.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit grant tx: %w", err)
	}
	return nil
}
