// Package businessflow contains the business logic for the application.
package businessflow

import (
	"time"

	"github.com/postlane/postlane/app/dto"
	"github.com/postlane/postlane/models"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds all client-related information for audit logging and session tracking
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// ToEmailJobDTO converts a job model to its API representation
func ToEmailJobDTO(job models.EmailJob) dto.EmailJobDTO {
	d := dto.EmailJobDTO{
		ID:           job.ID,
		JobType:      job.JobType,
		Status:       job.Status,
		Priority:     job.Priority,
		AttemptCount: job.AttemptCount,
		ScheduledFor: job.ScheduledFor.Format(time.RFC3339),
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}
	if job.LastError != nil {
		d.LastError = *job.LastError
	}
	return d
}

// ToSyncJobDTO converts a sync job model to its API representation
func ToSyncJobDTO(job models.SyncJob) dto.SyncJobDTO {
	d := dto.SyncJobDTO{
		UUID:           job.UUID.String(),
		AudienceID:     job.AudienceID,
		Status:         job.Status,
		Phase:          job.CurrentPhase,
		TotalMembers:   job.TotalMembers,
		ProcessedCount: job.ProcessedCount,
		SyncedToStore:  job.SyncedToStoreCount,
		SyncedToSink:   job.SyncedToSinkCount,
		FailedEmails:   job.FailedEmails,
		StartedAt:      job.StartedAt.Format(time.RFC3339),
	}
	if job.TotalMembers > 0 {
		d.Percentage = float64(job.ProcessedCount) / float64(job.TotalMembers) * 100
	}
	// ETA from the observed processing rate; only meaningful mid-run.
	if job.Status == models.SyncStatusProcessing && job.ProcessedCount > 0 && job.ProcessedCount < job.TotalMembers {
		elapsed := job.UpdatedAt.Sub(job.StartedAt)
		perMember := elapsed / time.Duration(job.ProcessedCount)
		d.ETASeconds = (perMember * time.Duration(job.TotalMembers - job.ProcessedCount)).Seconds()
	}
	if job.Error != nil {
		d.Error = *job.Error
	}
	return d
}

// ToAudienceDTO converts an audience model to its API representation
func ToAudienceDTO(a models.Audience) dto.AudienceDTO {
	return dto.AudienceDTO{
		ID:               a.ID,
		Name:             a.Name,
		SourceAudienceID: a.SourceAudienceID,
		SinkAudienceID:   a.SinkAudienceID,
		MemberCount:      a.MemberCount,
		Ready:            a.Ready,
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
	}
}
