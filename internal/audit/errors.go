package audit

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound signals a missing row scoped to the requesting user.
	ErrNotFound = errors.New("not found")
	// ErrNoJobs signals an empty queue on ClaimNext.
	ErrNoJobs = errors.New("no queued jobs")
	// ErrInsufficientCredits rejects an enqueue or consume that would
	// overdraw the account.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrNotClaimOwner rejects a settle attempt by a worker that does not
	// hold the claim.
	ErrNotClaimOwner = errors.New("job claimed by another worker")
)

// Fetch failure reason codes stored on failed jobs.
const (
	ReasonTimeout     = "timeout"
	ReasonDNS         = "dns"
	ReasonRenderCrash = "render_crash"
	ReasonStaleClaim  = "stale_claim"
)

// HTTPReason builds the reason code for a terminal HTTP status, e.g. http_404.
func HTTPReason(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// FetchError is a terminal fetch/render failure. The worker maps it directly
// to a job fail transition with the carried reason.
type FetchError struct {
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch failed: %s", e.Reason)
	}
	return fmt.Sprintf("fetch failed (%s): %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err with a reason code.
func NewFetchError(reason string, err error) *FetchError {
	return &FetchError{Reason: reason, Err: err}
}

// ClassifyFetchErr maps a transport-level error to a reason code, falling
// back to the provided default when no more specific cause is recognizable.
func ClassifyFetchErr(err error, fallback string) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return fallback
}
