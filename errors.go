package forall

import "errors"

// Common dispatch errors.
var (
	// ErrNilBody is returned when dispatching a nil per-element operation.
	ErrNilBody = errors.New("forall: body must not be nil")

	// ErrNilKernel is returned when LaunchKernel is called with a nil kernel.
	ErrNilKernel = errors.New("forall: kernel must not be nil")

	// ErrUnsupportedDomain is returned when dispatching a domain type
	// the engine does not recognize.
	ErrUnsupportedDomain = errors.New("forall: unsupported domain type")

	// ErrNilDomain is returned when dispatching a nil domain.
	ErrNilDomain = errors.New("forall: domain must not be nil")
)
