package analyzer

import "errors"

var (
	// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid target URL")

	// ErrCanceled is returned when the caller's context ends before the
	// analysis completes. No partial report accompanies it.
	ErrCanceled = errors.New("analysis canceled")

	// ErrDeadline is returned when the probe rate limit cannot start every
	// link probe before the caller's deadline. It is reported as soon as that
	// is known, while the context is still live.
	ErrDeadline = errors.New("analysis cannot finish before deadline")
)
