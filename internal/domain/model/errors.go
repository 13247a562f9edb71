package model

import "errors"

// Sentinel errors for score validation.
var (
	ErrIncompleteScore = errors.New("score record is missing a metric")
	ErrScoreOutOfRange = errors.New("score out of range")
)
