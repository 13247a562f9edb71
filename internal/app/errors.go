package service

import "errors"

// Sentinel errors returned by Service. Callers inspect them with errors.Is.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionCreate = errors.New("failed to create matching session")
	ErrFetchData     = errors.New("failed to fetch matching data")
	ErrGenerate      = errors.New("failed to generate recommendations")
	ErrNotFound      = errors.New("not found")
)
