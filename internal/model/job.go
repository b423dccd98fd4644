package model

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a scan job.
//
// Design decision: Unlike Severity, statuses are typed strings rather than
// iota constants because they are persisted in the job snapshot store and
// exchanged over the API; string values survive schema evolution where
// integer ordinals would silently change meaning.
type JobStatus string

const (
	// StatusPending means the job is accepted but its background task has
	// not started yet.
	StatusPending JobStatus = "pending"

	// StatusRunning means the pipeline is executing.
	StatusRunning JobStatus = "running"

	// StatusCompleted means the pipeline finished and a result is attached.
	StatusCompleted JobStatus = "completed"

	// StatusFailed means a stage failed fatally; Error holds the cause.
	StatusFailed JobStatus = "failed"

	// StatusCancelled means the job was cancelled by the caller. The
	// cancellation is advisory: an already-running background task is not
	// interrupted.
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Transitions are monotonic and one-directional:
//
//	pending -> running -> {completed | failed}
//	{pending | running} -> cancelled
//
// Terminal states accept no further transitions.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	default:
		return false
	}
}

// ScanMode selects the detection configuration profile.
type ScanMode string

const (
	// ModeQuick is the default profile: conservative rate limit, short
	// per-request timeout, surface-level template categories.
	ModeQuick ScanMode = "quick"

	// ModeDeep enables the full template allow-list with a higher rate
	// limit and longer per-request timeout.
	ModeDeep ScanMode = "deep"
)

// ParseScanMode converts a mode string into a ScanMode.
// Unknown or empty values map to ModeQuick to keep submission forgiving.
func ParseScanMode(s string) ScanMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeDeep)) {
		return ModeDeep
	}
	return ModeQuick
}

// Summary aggregates pipeline statistics for a completed scan.
type Summary struct {
	Target           string  `json:"target"`
	TotalEndpoints   int     `json:"total_endpoints"`
	RawFindingsCount int     `json:"raw_findings_count"`
	TopIssuesCount   int     `json:"top_issues_count"`
	ParamsFound      int     `json:"params_found"`
	TemplatesLoaded  int     `json:"templates_loaded"`
	RequestsSent     int     `json:"requests_sent"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// ScanResult is the final output of one pipeline run.
type ScanResult struct {
	Summary  Summary            `json:"summary"`
	Findings []ExplainedFinding `json:"findings"`
}

// ScanJob tracks one end-to-end pipeline run for one target.
// Jobs are created on submission and exclusively owned and mutated by the
// job registry; callers only ever see copies.
type ScanJob struct {
	// ScanID uniquely identifies the job. Generated, never reused.
	ScanID string `json:"scan_id"`

	// Target is the URL under assessment.
	Target string `json:"target"`

	// Mode is the detection profile requested at submission.
	Mode ScanMode `json:"mode"`

	// OwnerID identifies the submitting principal. Empty for anonymous
	// CLI scans.
	OwnerID string `json:"owner_id,omitempty"`

	// Status is the current lifecycle state.
	Status JobStatus `json:"status"`

	// SubmittedAt is when the job was accepted.
	SubmittedAt time.Time `json:"submitted_at"`

	// StartedAt is when the background task began running, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is attached only on transition into StatusCompleted.
	Result *ScanResult `json:"result,omitempty"`

	// Error holds the human-readable failure cause for failed or
	// cancelled jobs.
	Error string `json:"error,omitempty"`
}

// Clone returns a deep copy of the job. The registry hands clones to
// callers so that concurrent readers can never observe or corrupt
// in-flight mutations.
func (j *ScanJob) Clone() *ScanJob {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Findings = append([]ExplainedFinding(nil), j.Result.Findings...)
		cp.Result = &r
	}
	return &cp
}
