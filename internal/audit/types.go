// Package audit defines core types shared across subsystems.
package audit

import "time"

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// AnalysisType selects the rule set applied to a page snapshot.
type AnalysisType string

// Analysis types accepted by the API.
const (
	AnalysisTechnical  AnalysisType = "technical"
	AnalysisContent    AnalysisType = "content"
	AnalysisEEAT       AnalysisType = "eeat"
	AnalysisCompetitor AnalysisType = "competitor"
)

// FetchMode chooses between a plain HTTP fetch and a headless render.
type FetchMode string

// Fetch modes.
const (
	FetchSimple   FetchMode = "simple"
	FetchRendered FetchMode = "rendered"
)

// Plan is a subscription tier controlling the monthly credit allotment.
type Plan string

// Subscription plans.
const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanAgency  Plan = "agency"
)

// PlanAllotments maps each plan to its monthly credit allotment.
var PlanAllotments = map[Plan]int{
	PlanFree:    20,
	PlanStarter: 200,
	PlanPro:     800,
	PlanAgency:  2500,
}

// Job is the unit of requested analysis work tracked through the state machine.
// A job in processing carries a claim marker (ClaimedBy + ClaimedAt) so stuck
// jobs can be detected.
type Job struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	URL       string       `json:"url"`
	Type      AnalysisType `json:"type"`
	Mode      FetchMode    `json:"mode"`
	Status    JobStatus    `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	ClaimedBy string       `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time   `json:"claimed_at,omitempty"`
	Requeues  int          `json:"requeues"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PageSnapshot holds the raw signals extracted from a fetched or rendered page.
type PageSnapshot struct {
	URL             string    `json:"url"`
	FinalURL        string    `json:"final_url"`
	StatusCode      int       `json:"status_code"`
	Title           string    `json:"title"`
	HasTitle        bool      `json:"has_title"`
	MetaDescription string    `json:"meta_description"`
	HasMeta         bool      `json:"has_meta"`
	H1Count         int       `json:"h1_count"`
	Links           []string  `json:"links"`
	BodyBytes       int       `json:"body_bytes"`
	Rendered        bool      `json:"rendered"`
	DurationMs      int64     `json:"duration_ms"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Severity grades a finding.
type Severity string

// Finding severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is a single issue or observation emitted by the analyzer.
type Finding struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Payload is the structured result body produced by the analyzer, tagged by
// analysis type and validated at the analyzer boundary.
type Payload struct {
	Type       AnalysisType `json:"type"`
	URL        string       `json:"url"`
	Snapshot   PageSnapshot `json:"snapshot"`
	Findings   []Finding    `json:"findings"`
	Score      int          `json:"score"`
	ArchiveURI string       `json:"archive_uri,omitempty"`
}

// Result is one immutable row of analysis history. JobID is nil for direct
// (synchronous) analyses that never went through the queue.
type Result struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	JobID     *string   `json:"job_id,omitempty"`
	Summary   string    `json:"summary"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// CreditAccount is the per-user quota record. Balance is only ever mutated
// through the ledger's atomic operations.
type CreditAccount struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Plan      Plan      `json:"plan"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

var validTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// Re-queueing a stale claim is handled separately by JobStore.RequeueStale and
// is deliberately not expressible here.
func CanTransition(from, to JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is final.
func IsTerminal(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// ValidAnalysisType reports whether t names a known analysis type.
func ValidAnalysisType(t AnalysisType) bool {
	switch t {
	case AnalysisTechnical, AnalysisContent, AnalysisEEAT, AnalysisCompetitor:
		return true
	default:
		return false
	}
}

// ValidFetchMode reports whether m names a known fetch mode.
func ValidFetchMode(m FetchMode) bool {
	return m == FetchSimple || m == FetchRendered
}

// ValidPlan reports whether p names a known plan.
func ValidPlan(p Plan) bool {
	_, ok := PlanAllotments[p]
	return ok
}
