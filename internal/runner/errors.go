package runner

import "errors"

// Runner errors.
//
// Design decision: Package-level sentinel errors allow callers to use
// errors.Is() to distinguish a missing binary (fatal for the job) from an
// abnormal exit (fatal) and a timeout (degraded, partial output usable).
var (
	// ErrToolNotFound is returned when a tool binary exists neither in the
	// bundled bin directory nor on the search path.
	ErrToolNotFound = errors.New("tool not found: checked bundled bin directory and search path")

	// ErrToolInvocation is returned when a tool exits abnormally for a
	// reason other than the hard timeout.
	ErrToolInvocation = errors.New("tool invocation failed")

	// ErrToolTimeout indicates the hard wall-clock budget expired and the
	// process was terminated. Output collected before termination remains
	// valid.
	ErrToolTimeout = errors.New("tool exceeded hard timeout")
)
