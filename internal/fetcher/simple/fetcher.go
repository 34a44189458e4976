// Package simple implements audit.Fetcher with a plain HTTP GET via gocolly.
package simple

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/seoscope/seoscope/internal/audit"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches a page without executing JavaScript and extracts the
// on-page signals the analyzer needs.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single GET for url. Terminal failures are returned as
// *audit.FetchError carrying the reason code.
func (f *Fetcher) Fetch(ctx context.Context, url string) (audit.PageSnapshot, []byte, error) {
	var (
		snap     audit.PageSnapshot
		body     []byte
		fetchErr *audit.FetchError
	)
	snap.URL = url

	start := time.Now()
	collector := f.buildCollector(&snap, &body, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return audit.PageSnapshot{}, nil, audit.NewFetchError(audit.ReasonTimeout, ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return audit.PageSnapshot{}, nil, fetchErr
		}
		if err != nil {
			return audit.PageSnapshot{}, nil, audit.NewFetchError(audit.ClassifyFetchErr(err, "fetch_error"), err)
		}
	}

	snap.DurationMs = time.Since(start).Milliseconds()
	snap.FetchedAt = time.Now().UTC()
	return snap, body, nil
}

func (f *Fetcher) buildCollector(
	snap *audit.PageSnapshot,
	body *[]byte,
	fetchErr **audit.FetchError,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		snap.FinalURL = r.Request.URL.String()
		snap.StatusCode = r.StatusCode
		snap.BodyBytes = len(r.Body)
		*body = append([]byte(nil), r.Body...)
	})

	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if snap.HasTitle {
			return
		}
		snap.Title = strings.TrimSpace(e.Text)
		snap.HasTitle = true
	})

	collector.OnHTML(`meta[name="description"]`, func(e *colly.HTMLElement) {
		if snap.HasMeta {
			return
		}
		snap.MetaDescription = strings.TrimSpace(e.Attr("content"))
		snap.HasMeta = true
	})

	collector.OnHTML("h1", func(_ *colly.HTMLElement) {
		snap.H1Count++
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		snap.Links = append(snap.Links, e.Attr("href"))
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Non-2xx responses land here with the status code attached.
		if r != nil && r.StatusCode > 0 {
			*fetchErr = audit.NewFetchError(audit.HTTPReason(r.StatusCode), err)
			return
		}
		*fetchErr = audit.NewFetchError(audit.ClassifyFetchErr(err, "fetch_error"), err)
	})

	return collector
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
