package model

import (
	"testing"
	"time"
)

// TestJobStatusCanTransitionTo tests the lifecycle transition rules.
func TestJobStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending to running", StatusPending, StatusRunning, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to completed skips running", StatusPending, StatusCompleted, false},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to cancelled", StatusRunning, StatusCancelled, true},
		{"running back to pending", StatusRunning, StatusPending, false},
		{"completed to running", StatusCompleted, StatusRunning, false},
		{"completed to cancelled", StatusCompleted, StatusCancelled, false},
		{"failed to running", StatusFailed, StatusRunning, false},
		{"cancelled to running", StatusCancelled, StatusRunning, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
				t.Errorf("%s -> %s: got %v, expected %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

// TestJobStatusIsTerminal tests terminal state detection.
func TestJobStatusIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []JobStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	active := []JobStatus{StatusPending, StatusRunning}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

// TestParseScanMode tests mode parsing.
func TestParseScanMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected ScanMode
	}{
		{"quick", ModeQuick},
		{"deep", ModeDeep},
		{"DEEP", ModeDeep},
		{"", ModeQuick},
		{"thorough", ModeQuick},
	}

	for _, tc := range testCases {
		if got := ParseScanMode(tc.input); got != tc.expected {
			t.Errorf("ParseScanMode(%q) = %v, expected %v", tc.input, got, tc.expected)
		}
	}
}

// TestScanJobClone tests that clones are fully detached from the original.
func TestScanJobClone(t *testing.T) {
	t.Parallel()

	started := time.Now()
	job := &ScanJob{
		ScanID:      "abc",
		Target:      "https://example.com",
		Mode:        ModeQuick,
		Status:      StatusCompleted,
		SubmittedAt: started,
		StartedAt:   &started,
		Result: &ScanResult{
			Summary: Summary{Target: "https://example.com", TopIssuesCount: 1},
			Findings: []ExplainedFinding{
				{ID: "tls-version", Severity: SeverityMedium},
			},
		},
	}

	clone := job.Clone()

	// Mutating the clone must not affect the original.
	clone.Status = StatusFailed
	*clone.StartedAt = started.Add(time.Hour)
	clone.Result.Findings[0].ID = "mutated"
	clone.Result.Summary.TopIssuesCount = 99

	if job.Status != StatusCompleted {
		t.Error("clone mutation leaked into original status")
	}
	if !job.StartedAt.Equal(started) {
		t.Error("clone mutation leaked into original StartedAt")
	}
	if job.Result.Findings[0].ID != "tls-version" {
		t.Error("clone mutation leaked into original findings")
	}
	if job.Result.Summary.TopIssuesCount != 1 {
		t.Error("clone mutation leaked into original summary")
	}
}

// TestFindingDedupKey tests the deduplication key derivation.
func TestFindingDedupKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		finding  Finding
		expected string
	}{
		{
			name:     "matched-at present",
			finding:  Finding{TemplateID: "tls-version", MatchedAt: "https://example.com"},
			expected: "tls-version-https://example.com",
		},
		{
			name: "falls back to raw host",
			finding: Finding{
				TemplateID: "tls-version",
				Raw:        map[string]any{"host": "example.com"},
			},
			expected: "tls-version-example.com",
		},
		{
			name:     "falls back to unknown",
			finding:  Finding{TemplateID: "tls-version"},
			expected: "tls-version-unknown",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.finding.DedupKey(); got != tc.expected {
				t.Errorf("got %q, expected %q", got, tc.expected)
			}
		})
	}
}
