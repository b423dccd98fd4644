package pipeline

import "errors"

var (
	// ErrNoAttackSurface is returned when discovery finds zero endpoints.
	// There is nothing the detection stage could probe, so the scan fails
	// rather than completing with a trivially empty result.
	ErrNoAttackSurface = errors.New("no attack surface discovered")

	// ErrBenchmarkGate is returned when a scan of a known-vulnerable
	// reference target produces zero raw findings. Such a result means
	// the detection setup is broken, not that the target is clean.
	ErrBenchmarkGate = errors.New("benchmark target produced no findings")
)
