package engine

import "errors"

// Command failure taxonomy. All are synchronous, local and recoverable by
// the caller; none leaves deck or mixer state corrupted.
var (
	// ErrInvalidState marks an operation whose precondition (track loaded,
	// playing, recording active) is not met.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRange marks loop/cue/slot bounds that violate invariants.
	ErrInvalidRange = errors.New("invalid range")

	// ErrPlatformUnavailable marks a missing platform facility (decoder or
	// encoder binary). The engine keeps operating in degraded mode.
	ErrPlatformUnavailable = errors.New("platform unavailable")
)
