package recommend

import "errors"

// Sentinel errors for a fan-out run.
var (
	// ErrPairFailed wraps the first pair error under PolicyFailFast.
	ErrPairFailed = errors.New("pair scoring failed")
	// ErrAllPairsFailed is returned under PolicyPartial when no pair succeeded.
	ErrAllPairsFailed = errors.New("every pair failed to score")
	// ErrPairNotScored marks pairs still unresolved when the run ended.
	ErrPairNotScored = errors.New("pair not scored before the run ended")
	// ErrCanceled is returned when the caller's context ends the run.
	ErrCanceled = errors.New("fan-out canceled")
)
