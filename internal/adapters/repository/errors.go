package repository

import "errors"

// Sentinel errors returned by every Store.
var (
	ErrNotFound     = errors.New("record not found")
	ErrBackend      = errors.New("storage backend failure")
	ErrInvalidInput = errors.New("invalid input")
)
