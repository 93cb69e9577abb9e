package restbase

import "errors"

// Sentinel errors for errors.Is() checks. These cover construction
// defects only; request failures surface as *apierr.Error.
var (
	// ErrMissingBaseAddress is returned when no base address is provided.
	ErrMissingBaseAddress = errors.New("base address is required")

	// ErrInvalidBaseAddress is returned when the base address is not an
	// absolute URL.
	ErrInvalidBaseAddress = errors.New("base address must be an absolute URL")
)
