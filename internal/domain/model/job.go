package model

import "context"

// ScoreJob is one formatted (event, user) pair waiting for a worker.
type ScoreJob struct {
	// Ctx is the context of the run that produced the job. Workers score
	// under it so run deadlines and cancellation reach queued work.
	Ctx   context.Context //nolint:containedctx
	Index int
	Event Record
	User  Record
	Reply chan<- JobResult
}

// JobResult is delivered on ScoreJob.Reply once the job is done.
type JobResult struct {
	Index int
	Score ScoreRecord
	Err   error
}
