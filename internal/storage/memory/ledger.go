// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sync"

	"github.com/seoscope/seoscope/internal/audit"
)

// Ledger is an in-memory audit.CreditLedger. Every balance mutation happens
// under one mutex, which gives the same atomicity the SQL ledger gets from
// conditional updates.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]audit.CreditAccount
	events   map[string]struct{}
	clock    audit.Clock
}

// NewLedger creates a Ledger.
func NewLedger(clock audit.Clock) *Ledger {
	return &Ledger{
		accounts: make(map[string]audit.CreditAccount),
		events:   make(map[string]struct{}),
		clock:    clock,
	}
}

// CreateAccount registers an account. Creating the same user twice leaves the
// existing account untouched.
func (l *Ledger) CreateAccount(_ context.Context, account audit.CreditAccount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[account.UserID]; exists {
		return nil
	}
	account.UpdatedAt = l.clock.Now()
	l.accounts[account.UserID] = account
	return nil
}

// Consume checks and decrements in one critical section.
func (l *Ledger) Consume(_ context.Context, userID string, amount int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[userID]
	if !ok {
		return false, 0, audit.ErrNotFound
	}
	if account.Balance < amount {
		return false, account.Balance, nil
	}
	account.Balance -= amount
	account.UpdatedAt = l.clock.Now()
	l.accounts[userID] = account
	return true, account.Balance, nil
}

// Balance returns the account for userID.
func (l *Ledger) Balance(_ context.Context, userID string) (audit.CreditAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[userID]
	if !ok {
		return audit.CreditAccount{}, audit.ErrNotFound
	}
	return account, nil
}

// ResetMonthly sets every account's balance to its plan allotment.
func (l *Ledger) ResetMonthly(_ context.Context, allotments map[audit.Plan]int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reset := 0
	now := l.clock.Now()
	for id, account := range l.accounts {
		allotment, ok := allotments[account.Plan]
		if !ok {
			continue
		}
		account.Balance = allotment
		account.UpdatedAt = now
		l.accounts[id] = account
		reset++
	}
	return reset, nil
}

// Grant applies a billing event once. Replays of the same eventID are no-ops.
func (l *Ledger) Grant(_ context.Context, eventID, email string, plan audit.Plan, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.events[eventID]; seen {
		return nil
	}

	for id, account := range l.accounts {
		if account.Email != email {
			continue
		}
		account.Plan = plan
		account.Balance += amount
		account.UpdatedAt = l.clock.Now()
		l.accounts[id] = account
		l.events[eventID] = struct{}{}
		return nil
	}
	return audit.ErrNotFound
}
