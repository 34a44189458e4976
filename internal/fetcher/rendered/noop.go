package rendered

import (
	"context"
	"errors"

	"github.com/seoscope/seoscope/internal/audit"
)

// Noop implements audit.Fetcher but always fails, for builds where a browser
// is not available.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch reports rendering as unavailable.
func (Noop) Fetch(context.Context, string) (audit.PageSnapshot, []byte, error) {
	return audit.PageSnapshot{}, nil, audit.NewFetchError(
		audit.ReasonRenderCrash,
		errors.New("headless renderer not configured"),
	)
}
