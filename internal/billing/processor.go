// Package billing applies payment-provider webhook events to the credit
// ledger.
package billing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seoscope/seoscope/internal/audit"
)

// Event types that grant credits. Everything else is acknowledged unchanged.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.payment_succeeded"
)

// Event is the provider webhook envelope, trimmed to the fields we use.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			CustomerEmail string `json:"customer_email"`
			Metadata      struct {
				Plan string `json:"plan"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Processor turns billing events into ledger grants.
type Processor struct {
	ledger     audit.CreditLedger
	allotments map[audit.Plan]int
	logger     *zap.Logger
}

// New constructs a Processor.
func New(ledger audit.CreditLedger, allotments map[audit.Plan]int, logger *zap.Logger) *Processor {
	if allotments == nil {
		allotments = audit.PlanAllotments
	}
	return &Processor{ledger: ledger, allotments: allotments, logger: logger}
}

// Process applies one webhook event. Replays of an already-processed event id
// are no-ops via the ledger's dedup. Unknown event types and unknown accounts
// are acknowledged so the provider stops redelivering them.
func (p *Processor) Process(ctx context.Context, event Event) error {
	switch event.Type {
	case EventCheckoutCompleted, EventInvoicePaid:
	default:
		p.logger.Debug("ignoring billing event", zap.String("type", event.Type))
		return nil
	}

	if event.ID == "" {
		return fmt.Errorf("billing event has no id")
	}
	email := event.Data.Object.CustomerEmail
	if email == "" {
		return fmt.Errorf("billing event %s has no customer email", event.ID)
	}

	plan := audit.Plan(event.Data.Object.Metadata.Plan)
	if !audit.ValidPlan(plan) {
		p.logger.Warn("billing event with unknown plan, defaulting to starter",
			zap.String("event_id", event.ID),
			zap.String("plan", string(plan)),
		)
		plan = audit.PlanStarter
	}

	err := p.ledger.Grant(ctx, event.ID, email, plan, p.allotments[plan])
	if errors.Is(err, audit.ErrNotFound) {
		p.logger.Warn("billing event for unknown account",
			zap.String("event_id", event.ID),
			zap.String("email", email),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply billing event %s: %w", event.ID, err)
	}

	p.logger.Info("billing event applied",
		zap.String("event_id", event.ID),
		zap.String("plan", string(plan)),
	)
	return nil
}
