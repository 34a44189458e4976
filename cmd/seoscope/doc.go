// Package main hosts the audit service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, account, credit, and job endpoints. Requests are
//     validated, priced against the caller's credit balance, and persisted via the JobStore before workers pick
//     them up.
//   - Worker pool & sweeper: a fixed pool sized by config.Worker.Count polls the JobStore with FOR UPDATE SKIP
//     LOCKED claims (or the equivalent in-memory lock). A background sweeper requeues jobs stranded by crashed
//     workers and fails them permanently after too many requeues.
//   - Fetch pipeline: workers fetch the target page either with the Colly-based simple fetcher or, for rendered
//     jobs, through a Chromedp headless browser bounded by its own semaphore. Fetch failures map to a small
//     reason taxonomy (timeout, dns, http_<code>, render_crash) recorded on the failed job.
//   - Analysis & persistence: the analyzer scores the page snapshot per analysis type, the raw HTML is archived
//     to the configured BlobStore (memory/local/GCS), the result row is appended idempotently on job id, and a
//     compact completion event is published to Pub/Sub when a project is configured.
//   - Billing: payment-provider webhooks are deduplicated by event id and grant plan allotments to the credit
//     ledger. A monthly reset endpoint restores every account to its plan allotment.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via /metrics; Redis backs the per-user API rate limiter when configured.
//
// Operational notes:
//   - Persistence: set SEOSCOPE_DB_DSN to run against Postgres (migrations apply at startup); leave it empty for
//     the in-memory stores in development.
//   - Shutdown: the process reacts to SIGTERM, drains the HTTP server, and cancels workers via context. Jobs
//     mid-flight are recovered by the stale-claim sweeper on the next run.
//   - Run locally: go run ./cmd/seoscope -config config.yaml (or rely solely on SEOSCOPE_* env overrides).
package main
