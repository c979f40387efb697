// Package adapters provides adapter functions to bridge different layers of the application
package adapters

import (
	"context"

	"github.com/postlane/postlane/app/scheduler"
	businessflow "github.com/postlane/postlane/business_flow"
)

// QueueRunnerAdapter adapts the worker's queue processor to the business
// flow's QueueRunner contract so the flow layer stays free of scheduler
// imports.
type QueueRunnerAdapter struct {
	processor *scheduler.QueueProcessor
}

// NewQueueRunnerAdapter creates a new queue runner adapter
func NewQueueRunnerAdapter(processor *scheduler.QueueProcessor) businessflow.QueueRunner {
	return &QueueRunnerAdapter{processor: processor}
}

// RunQueueOnce executes one bounded queue run and converts the worker summary
func (a *QueueRunnerAdapter) RunQueueOnce(ctx context.Context, maxJobs int) (businessflow.QueueRunSummary, error) {
	summary, err := a.processor.RunOnce(ctx, maxJobs)
	if err != nil {
		return businessflow.QueueRunSummary{}, err
	}
	return businessflow.QueueRunSummary{
		JobsProcessed: summary.JobsProcessed,
		JobsSucceeded: summary.JobsSucceeded,
		JobsFailed:    summary.JobsFailed,
		EmailsSent:    summary.EmailsSent,
		Elapsed:       summary.Elapsed,
	}, nil
}
