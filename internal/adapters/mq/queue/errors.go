package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrClosed   = errors.New("queue closed")
	ErrCanceled = errors.New("enqueue canceled")
)
