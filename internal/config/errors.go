package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no target URL is specified for a CLI scan.
	ErrNoTarget = errors.New("no target specified: provide at least one URL to scan")

	// ErrInvalidTimeout is returned when a tool timeout is not positive.
	// A timeout of zero or negative would terminate tools immediately.
	ErrInvalidTimeout = errors.New("invalid tool timeout: must be positive")

	// ErrInvalidCrawlDepth is returned when the discovery crawl depth is
	// not positive. Depth 0 would discover nothing beyond the start URL.
	ErrInvalidCrawlDepth = errors.New("invalid crawl depth: must be positive")

	// ErrInvalidMaxIssues is returned when the prioritized-set cap is not
	// positive. A cap of zero would hide every finding from the user.
	ErrInvalidMaxIssues = errors.New("invalid max issues: must be positive")

	// ErrInvalidConcurrency is returned when the batch concurrency is not
	// positive. Zero concurrency would mean no scans run at all.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
