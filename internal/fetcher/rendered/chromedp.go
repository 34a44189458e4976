// Package rendered implements audit.Fetcher with a headless browser so
// JavaScript-built pages are analyzed after they finish rendering.
package rendered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/seoscope/seoscope/internal/audit"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher drives headless Chrome via chromedp.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// pageSignals is filled by a single Evaluate against the rendered DOM.
type pageSignals struct {
	Title    string   `json:"title"`
	HasTitle bool     `json:"hasTitle"`
	Meta     string   `json:"meta"`
	HasMeta  bool     `json:"hasMeta"`
	H1Count  int      `json:"h1Count"`
	Links    []string `json:"links"`
}

const extractScript = `(() => {
	const titleEl = document.querySelector('title');
	const metaEl = document.querySelector('meta[name="description"]');
	return {
		title: titleEl ? titleEl.textContent.trim() : '',
		hasTitle: !!titleEl,
		meta: metaEl ? (metaEl.getAttribute('content') || '').trim() : '',
		hasMeta: !!metaEl,
		h1Count: document.querySelectorAll('h1').length,
		links: Array.from(document.querySelectorAll('a[href]')).map(a => a.getAttribute('href')),
	};
})()`

// Fetch renders url in a fresh browser tab and extracts on-page signals from
// the final DOM. Terminal failures are *audit.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (audit.PageSnapshot, []byte, error) {
	if err := f.acquire(ctx); err != nil {
		return audit.PageSnapshot{}, nil, audit.NewFetchError(audit.ReasonTimeout, err)
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()

	var (
		signals  pageSignals
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(extractScript, &signals),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return audit.PageSnapshot{}, nil, classifyRunErr(err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if status >= 400 {
		return audit.PageSnapshot{}, nil, audit.NewFetchError(
			audit.HTTPReason(status),
			fmt.Errorf("document responded with status %d", status),
		)
	}

	snap := audit.PageSnapshot{
		URL:             url,
		FinalURL:        responseURL,
		StatusCode:      status,
		Title:           signals.Title,
		HasTitle:        signals.HasTitle,
		MetaDescription: signals.Meta,
		HasMeta:         signals.HasMeta,
		H1Count:         signals.H1Count,
		Links:           signals.Links,
		BodyBytes:       len(html),
		Rendered:        true,
		DurationMs:      time.Since(start).Milliseconds(),
		FetchedAt:       time.Now().UTC(),
	}
	return snap, []byte(html), nil
}

// classifyRunErr maps chromedp failures onto reason codes. A deadline on the
// tab context means the navigation timed out; anything else from the browser
// process counts as a render crash.
func classifyRunErr(err error) *audit.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return audit.NewFetchError(audit.ReasonTimeout, err)
	}
	reason := audit.ClassifyFetchErr(err, audit.ReasonRenderCrash)
	return audit.NewFetchError(reason, err)
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = 200
	}
	return status, url
}
