package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	businessflow "github.com/postlane/postlane/business_flow"
	"github.com/postlane/postlane/config"
	"github.com/postlane/postlane/repository"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Summary reports one bounded queue run.
type Summary struct {
	JobsProcessed int           `json:"jobs_processed"`
	JobsSucceeded int           `json:"jobs_succeeded"`
	JobsFailed    int           `json:"jobs_failed"`
	EmailsSent    int           `json:"emails_sent"`
	Elapsed       time.Duration `json:"elapsed"`
}

// QueueProcessor drains the job queue in bounded runs: each run claims jobs
// one at a time until the wall-clock budget or the per-run job cap is hit,
// or the queue is empty. Runs are safe to re-invoke concurrently or
// back-to-back; claim exclusivity is the only coordination required.
//
// The budget only prevents starting new jobs. A claimed job always runs to
// completion or failure within the current run.
type QueueProcessor struct {
	jobRepo    repository.EmailJobRepository
	dispatcher *CampaignDispatcher
	cfg        config.WorkerConfig
	logger     *log.Logger
	metrics    *DispatchMetrics
}

func NewQueueProcessor(
	jobRepo repository.EmailJobRepository,
	dispatcher *CampaignDispatcher,
	cfg config.WorkerConfig,
	logging config.LoggingConfig,
	metrics *DispatchMetrics,
) *QueueProcessor {
	p := &QueueProcessor{
		jobRepo:    jobRepo,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    metrics,
	}
	p.initWorkerLogger(logging)
	return p
}

// initWorkerLogger configures a logger that writes to stdout and, when
// enabled, a rotating file.
func (p *QueueProcessor) initWorkerLogger(logging config.LoggingConfig) {
	var w io.Writer = os.Stdout
	if logging.EnableWorkerLog && logging.WorkerLogPath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logging.WorkerLogPath,
			MaxSize:    logging.MaxSize,
			MaxBackups: logging.MaxBackups,
			MaxAge:     logging.MaxAge,
			Compress:   logging.Compress,
		})
	}
	// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
	p.logger = log.New(w, "worker ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the periodic dispatch loop in a background goroutine and
// returns a stop function.
func (p *QueueProcessor) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		p.runAndLog(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runAndLog(ctx)
			}
		}
	}()

	return cancel
}

func (p *QueueProcessor) runAndLog(ctx context.Context) {
	summary, err := p.RunOnce(ctx, 0)
	if err != nil {
		p.logger.Printf("worker: run failed: %v", err)
		return
	}
	if summary.JobsProcessed > 0 {
		p.logger.Printf("worker: processed %d jobs (%d ok, %d failed, %d emails) in %s",
			summary.JobsProcessed, summary.JobsSucceeded, summary.JobsFailed, summary.EmailsSent, summary.Elapsed)
	}
}

// RunOnce performs one bounded queue run. maxJobs overrides the configured
// per-run job cap when positive.
func (p *QueueProcessor) RunOnce(ctx context.Context, maxJobs int) (Summary, error) {
	if maxJobs <= 0 {
		maxJobs = p.cfg.MaxJobs
	}
	start := time.Now()
	deadline := start.Add(p.cfg.Budget)

	var summary Summary
	for summary.JobsProcessed < maxJobs && time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		job, err := p.jobRepo.ClaimNext(ctx, p.cfg.WorkerID)
		if err != nil {
			summary.Elapsed = time.Since(start)
			return summary, fmt.Errorf("claim next job: %w", err)
		}
		if job == nil {
			break // queue drained
		}

		summary.JobsProcessed++
		result := p.dispatcher.Run(ctx, job)
		if result.Success {
			summary.JobsSucceeded++
			summary.EmailsSent += result.SentCount
			if err := p.jobRepo.Complete(ctx, job.ID, true, ""); err != nil {
				p.logger.Printf("worker: complete job id=%d failed: %v", job.ID, err)
			}
		} else {
			summary.JobsFailed++
			p.logger.Printf("worker: job id=%d failed: %v", job.ID, result.Err)
			p.resolveFailure(ctx, job.ID, result.Err)
		}
		if p.metrics != nil {
			p.metrics.ObserveJob(job.JobType, result.Success, result.SentCount)
		}

		// Extra spacing beyond the sink rate limiter, to smooth bursts.
		if p.cfg.InterJobDelay > 0 {
			select {
			case <-ctx.Done():
				summary.Elapsed = time.Since(start)
				return summary, ctx.Err()
			case <-time.After(p.cfg.InterJobDelay):
			}
		}
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// resolveFailure records the error and decides retry or terminal failure.
// Validation errors can never succeed and are failed immediately; everything
// else goes through the backoff schedule up to max attempts.
func (p *QueueProcessor) resolveFailure(ctx context.Context, jobID uint, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if businessflow.IsInvalidRecipient(cause) || businessflow.IsJobPayloadInvalid(cause) || businessflow.IsUnknownJobType(cause) {
		if err := p.jobRepo.Fail(ctx, jobID, msg); err != nil {
			p.logger.Printf("worker: fail job id=%d failed: %v", jobID, err)
		}
		return
	}

	if err := p.jobRepo.Complete(ctx, jobID, false, msg); err != nil {
		p.logger.Printf("worker: record failure for job id=%d failed: %v", jobID, err)
	}
	retried, err := p.jobRepo.ScheduleRetry(ctx, jobID, p.cfg.MaxAttempts)
	if err != nil {
		p.logger.Printf("worker: schedule retry for job id=%d failed: %v", jobID, err)
		return
	}
	if !retried {
		p.logger.Printf("worker: job id=%d exhausted retries", jobID)
	}
}
