package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrUnknownJobType is returned when a job references a type no manifest registered
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrUnknownMethod is returned when a job type does not expose the requested method
	ErrUnknownMethod = errors.New("unknown job method")

	// ErrInvalidArgs is returned when job args JSON is malformed
	ErrInvalidArgs = errors.New("invalid job args")

	// ErrJobNotCancellable is returned when cancelling a job that already finished
	ErrJobNotCancellable = errors.New("job is not pending or running")

	// ErrJobNotDeletable is returned when deleting a job that may still be dispatched
	ErrJobNotDeletable = errors.New("job is not in a terminal status")
)
