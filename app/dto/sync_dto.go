package dto

// StartSyncRequest represents the request to start a bulk member sync
type StartSyncRequest struct {
	TenantID         uint   `json:"-"`
	AudienceName     string `json:"audience_name" validate:"required,max=255"`
	SourceAudienceID string `json:"source_audience_id" validate:"required,max=128"`
}

// StartSyncResponse acknowledges an accepted sync; progress is polled by UUID
type StartSyncResponse struct {
	SyncUUID   string `json:"sync_uuid"`
	AudienceID uint   `json:"audience_id"`
	Status     string `json:"status"`
}

// SyncJobDTO represents sync progress in API responses
type SyncJobDTO struct {
	UUID           string   `json:"uuid"`
	AudienceID     uint     `json:"audience_id"`
	Status         string   `json:"status"`
	Phase          string   `json:"phase"`
	TotalMembers   int      `json:"total_members"`
	ProcessedCount int      `json:"processed_count"`
	SyncedToStore  int      `json:"synced_to_store"`
	SyncedToSink   int      `json:"synced_to_sink"`
	Percentage     float64  `json:"percentage"`
	ETASeconds     float64  `json:"eta_seconds,omitempty"`
	FailedEmails   []string `json:"failed_emails,omitempty"`
	Error          string   `json:"error,omitempty"`
	StartedAt      string   `json:"started_at"`
}
