package dto

// AudienceDTO represents an audience in API responses
type AudienceDTO struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	SourceAudienceID string `json:"source_audience_id"`
	SinkAudienceID   string `json:"sink_audience_id,omitempty"`
	MemberCount      int    `json:"member_count"`
	Ready            bool   `json:"ready"`
	CreatedAt        string `json:"created_at"`
}

// ListAudiencesResponse represents the tenant's audiences
type ListAudiencesResponse struct {
	Audiences []AudienceDTO `json:"audiences"`
}

// SentEmailDTO represents one delivered broadcast in API responses
type SentEmailDTO struct {
	ID             uint   `json:"id"`
	JobID          uint   `json:"job_id"`
	BroadcastID    string `json:"broadcast_id"`
	RecipientCount int    `json:"recipient_count"`
	SentAt         string `json:"sent_at"`
}

// ListSentEmailsResponse represents a page of delivered broadcasts
type ListSentEmailsResponse struct {
	SentEmails []SentEmailDTO `json:"sent_emails"`
}
