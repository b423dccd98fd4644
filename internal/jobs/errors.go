package jobs

import "errors"

var (
	// ErrJobNotFound is returned when no job matches the given scan id
	// within the caller's visibility scope.
	ErrJobNotFound = errors.New("job not found")

	// ErrIllegalTransition is returned when a requested status change
	// violates the job lifecycle.
	ErrIllegalTransition = errors.New("illegal job status transition")
)
