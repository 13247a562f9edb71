package scoring

import (
	"errors"

	"github.com/okian/circlematch/internal/domain/model"
)

// Sentinel errors for a failed pair. Every Score error wraps one of them.
var (
	ErrModel              = errors.New("scoring model call failed")
	ErrNoStructuredOutput = errors.New("no structured score in model response")
	ErrInvalidOutput      = errors.New("structured score failed validation")
	ErrScoreOutOfRange    = model.ErrScoreOutOfRange
)
