// Package worker implements the background analysis loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seoscope/seoscope/internal/audit"
	"github.com/seoscope/seoscope/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	ID           string
	PollInterval time.Duration
	FetchTimeout time.Duration
	BlobPrefix   string
	ContentType  string
	Topic        string
}

// Worker claims queued jobs and runs the fetch/analyze/persist pipeline.
type Worker struct {
	jobs      audit.JobStore
	blobs     audit.BlobStore
	publisher audit.Publisher
	ids       audit.IDGenerator
	clock     audit.Clock
	simple    audit.Fetcher
	rendered  audit.Fetcher
	analyzer  audit.Analyzer
	summarize func(audit.Payload) string
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	jobs audit.JobStore,
	blobs audit.BlobStore,
	publisher audit.Publisher,
	ids audit.IDGenerator,
	clock audit.Clock,
	simple audit.Fetcher,
	rendered audit.Fetcher,
	analyzer audit.Analyzer,
	summarize func(audit.Payload) string,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Worker{
		jobs:      jobs,
		blobs:     blobs,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		simple:    simple,
		rendered:  rendered,
		analyzer:  analyzer,
		summarize: summarize,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, claiming and processing jobs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.jobs.ClaimNext(ctx, w.cfg.ID)
		if errors.Is(err, audit.ErrNoJobs) {
			w.sleep(ctx)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("claim failed", zap.String("worker_id", w.cfg.ID), zap.Error(err))
			w.sleep(ctx)
			continue
		}
		w.logger.Debug("claimed job", zap.String("job_id", job.ID), zap.String("url", job.URL))
		w.processJob(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}

func (w *Worker) processJob(ctx context.Context, job audit.Job) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	// A panic anywhere in the pipeline fails the job instead of killing the
	// worker loop.
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job pipeline panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
			w.failJob(ctx, job, "panic")
		}
	}()

	snap, body, err := w.fetch(ctx, job)
	if err != nil {
		var fe *audit.FetchError
		reason := "fetch_error"
		if errors.As(err, &fe) {
			reason = fe.Reason
		}
		w.logger.Warn("fetch failed",
			zap.String("job_id", job.ID),
			zap.String("url", job.URL),
			zap.String("reason", reason),
			zap.Error(err),
		)
		w.failJob(ctx, job, reason)
		return
	}

	payload := w.analyzer.Analyze(snap, job.Type)
	payload.ArchiveURI = w.archive(ctx, job, body)

	resultID, err := w.ids.NewID()
	if err != nil {
		w.logger.Error("result id generation failed", zap.String("job_id", job.ID), zap.Error(err))
		w.failJob(ctx, job, "internal_error")
		return
	}
	jobID := job.ID
	result := audit.Result{
		ID:      resultID,
		UserID:  job.UserID,
		JobID:   &jobID,
		Summary: w.summarize(payload),
		Payload: payload,
	}

	if err := w.complete(ctx, job, result); err != nil {
		w.logger.Error("complete failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(audit.JobStatusCompleted))
	w.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
		zap.Int("score", payload.Score),
		zap.Int("findings", len(payload.Findings)),
	)

	w.publishCompletion(ctx, job, result)
}

func (w *Worker) fetch(ctx context.Context, job audit.Job) (audit.PageSnapshot, []byte, error) {
	fetcher := w.simple
	if job.Mode == audit.FetchRendered {
		fetcher = w.rendered
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	start := w.clock.Now()
	snap, body, err := fetcher.Fetch(fetchCtx, job.URL)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveFetch(string(job.Mode), outcome, w.clock.Now().Sub(start))
	return snap, body, err
}

// archive uploads the raw HTML. Archival is best-effort: a blob failure is
// logged and the job still completes.
func (w *Worker) archive(ctx context.Context, job audit.Job, body []byte) string {
	if w.blobs == nil || len(body) == 0 {
		return ""
	}
	uri, err := w.blobs.Put(ctx, w.blobPath(job.ID), w.cfg.ContentType, body)
	if err != nil {
		w.logger.Warn("archive failed", zap.String("job_id", job.ID), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) blobPath(jobID string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s.html", jobID)
	}
	return fmt.Sprintf("%s/%s.html", prefix, jobID)
}

// complete retries once on a transient store error. Completion is idempotent
// on the store side, so the retry cannot double-write.
func (w *Worker) complete(ctx context.Context, job audit.Job, result audit.Result) error {
	err := w.jobs.Complete(ctx, job.ID, w.cfg.ID, result)
	if err == nil || errors.Is(err, audit.ErrNotClaimOwner) || errors.Is(err, audit.ErrNotFound) {
		return err
	}
	w.logger.Warn("complete retry", zap.String("job_id", job.ID), zap.Error(err))
	return w.jobs.Complete(ctx, job.ID, w.cfg.ID, result)
}

func (w *Worker) failJob(ctx context.Context, job audit.Job, reason string) {
	if err := w.jobs.Fail(ctx, job.ID, w.cfg.ID, reason); err != nil {
		w.logger.Error("fail transition failed",
			zap.String("job_id", job.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveJob(string(audit.JobStatusFailed))
}

func (w *Worker) publishCompletion(ctx context.Context, job audit.Job, result audit.Result) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"job_id":    job.ID,
		"user_id":   job.UserID,
		"url":       job.URL,
		"type":      job.Type,
		"result_id": result.ID,
		"score":     result.Payload.Score,
		"timestamp": w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("completion publish failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
