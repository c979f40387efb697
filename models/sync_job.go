package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Sync job statuses
const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// Sync phases reported to pollers
const (
	SyncPhaseStarting       = "starting"
	SyncPhaseFetchingPage   = "fetching_page"
	SyncPhaseSyncingToStore = "syncing_to_store"
	SyncPhaseSyncingToSink  = "syncing_to_sink"
	SyncPhaseFinalizing     = "finalizing"
	SyncPhaseDone           = "done"
)

// SyncJob tracks one bulk synchronization of an external member list into
// local storage and the remote sink audience.
//
// ProcessedCount is monotonic and never exceeds TotalMembers once the first
// page has resolved the total. The row is the durable source of truth for
// progress polling; a cache may mirror it but never replaces it.
type SyncJob struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	UUID               uuid.UUID      `gorm:"type:uuid;uniqueIndex:uk_sync_jobs_uuid;not null" json:"uuid"`
	TenantID           uint           `gorm:"not null;index:idx_sync_jobs_tenant_id" json:"tenant_id"`
	AudienceID         uint           `gorm:"not null;index:idx_sync_jobs_audience_id" json:"audience_id"`
	SourceAudienceID   string         `gorm:"size:128;not null" json:"source_audience_id"`
	SinkAudienceID     string         `gorm:"size:128" json:"sink_audience_id"`
	TotalMembers       int            `gorm:"not null;default:0" json:"total_members"`
	ProcessedCount     int            `gorm:"not null;default:0" json:"processed_count"`
	SyncedToStoreCount int            `gorm:"not null;default:0" json:"synced_to_store_count"`
	SyncedToSinkCount  int            `gorm:"not null;default:0" json:"synced_to_sink_count"`
	Status             string         `gorm:"size:20;not null;default:pending;index:idx_sync_jobs_status" json:"status"`
	CurrentPhase       string         `gorm:"size:32" json:"current_phase"`
	// FailedEmails keeps a capped sample of members skipped by per-record
	// errors so the UI can show what was dropped without a log dive.
	FailedEmails pq.StringArray `gorm:"type:text[]" json:"failed_emails,omitempty"`
	Error        *string        `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"started_at"`
	UpdatedAt    time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (SyncJob) TableName() string { return "sync_jobs" }

// SyncJobFilter represents filter criteria for sync job queries
type SyncJobFilter struct {
	TenantID   *uint
	AudienceID *uint
	Status     *string
}
