package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchMetrics collects Prometheus counters for queue runs and bulk syncs.
type DispatchMetrics struct {
	jobsProcessed        *prometheus.CounterVec
	emailsSent           prometheus.Counter
	syncMembersProcessed prometheus.Counter
	syncMembersFailed    prometheus.Counter
}

func NewDispatchMetrics() *DispatchMetrics {
	return &DispatchMetrics{
		jobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_jobs_processed_total",
				Help: "Total dispatch jobs processed, partitioned by job type and outcome",
			},
			[]string{"job_type", "outcome"},
		),
		emailsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_emails_sent_total",
				Help: "Total recipients reached by successful broadcast sends",
			},
		),
		syncMembersProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_members_processed_total",
				Help: "Total members processed by bulk syncs",
			},
		),
		syncMembersFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_members_failed_total",
				Help: "Total members skipped by bulk syncs due to per-record errors",
			},
		),
	}
}

// ObserveJob records one finished dispatch job.
func (m *DispatchMetrics) ObserveJob(jobType string, success bool, sentCount int) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	m.jobsProcessed.WithLabelValues(jobType, outcome).Inc()
	if sentCount > 0 {
		m.emailsSent.Add(float64(sentCount))
	}
}

// ObserveSyncMembers records bulk sync member outcomes for one page.
func (m *DispatchMetrics) ObserveSyncMembers(processed, failed int) {
	if processed > 0 {
		m.syncMembersProcessed.Add(float64(processed))
	}
	if failed > 0 {
		m.syncMembersFailed.Add(float64(failed))
	}
}
