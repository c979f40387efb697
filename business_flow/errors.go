// Package businessflow contains the core business logic and use cases for dispatch and sync workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Tenant-related errors
	ErrTenantNotFound          = errors.New("tenant not found")
	ErrTenantInactive          = errors.New("tenant is inactive")
	ErrSenderIdentityMissing   = errors.New("tenant sender identity is not configured")
	ErrInvalidRecipient        = errors.New("recipient email is invalid")
	ErrRecipientAlreadyEmailed = errors.New("recipient already received this trigger")

	// Job-related errors
	ErrJobNotFound        = errors.New("job not found")
	ErrJobPayloadInvalid  = errors.New("job payload is invalid")
	ErrRetriesExhausted   = errors.New("job retries exhausted")
	ErrUnknownJobType     = errors.New("unknown job type")
	ErrEmptySubject       = errors.New("email subject is required")
	ErrEmptyBody          = errors.New("email body is required")
	ErrScheduleInPast     = errors.New("scheduled time is too far in the past")
	ErrJobAlreadyFinished = errors.New("job already finished")

	// Flow-related errors
	ErrFlowNotFound       = errors.New("flow not found")
	ErrFlowInactive       = errors.New("flow is inactive")
	ErrFlowStepNotFound   = errors.New("flow step not found")
	ErrNoEnrolleesAtStep  = errors.New("no enrollees at flow step")
	ErrFlowStepOutOfRange = errors.New("flow step index out of range")

	// Audience and sync errors
	ErrAudienceNotFound    = errors.New("audience not found")
	ErrAudienceNotReady    = errors.New("audience is not ready")
	ErrSyncJobNotFound     = errors.New("sync job not found")
	ErrSyncAlreadyRunning  = errors.New("a sync is already running for this audience")
	ErrSourceNotConfigured = errors.New("member source is not configured")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

func IsTenantInactive(err error) bool {
	return errors.Is(err, ErrTenantInactive)
}

func IsSenderIdentityMissing(err error) bool {
	return errors.Is(err, ErrSenderIdentityMissing)
}

func IsInvalidRecipient(err error) bool {
	return errors.Is(err, ErrInvalidRecipient)
}

func IsRecipientAlreadyEmailed(err error) bool {
	return errors.Is(err, ErrRecipientAlreadyEmailed)
}

func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

func IsJobPayloadInvalid(err error) bool {
	return errors.Is(err, ErrJobPayloadInvalid)
}

func IsRetriesExhausted(err error) bool {
	return errors.Is(err, ErrRetriesExhausted)
}

func IsUnknownJobType(err error) bool {
	return errors.Is(err, ErrUnknownJobType)
}

func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

func IsFlowInactive(err error) bool {
	return errors.Is(err, ErrFlowInactive)
}

func IsFlowStepNotFound(err error) bool {
	return errors.Is(err, ErrFlowStepNotFound)
}

func IsAudienceNotFound(err error) bool {
	return errors.Is(err, ErrAudienceNotFound)
}

func IsAudienceNotReady(err error) bool {
	return errors.Is(err, ErrAudienceNotReady)
}

func IsSyncJobNotFound(err error) bool {
	return errors.Is(err, ErrSyncJobNotFound)
}

func IsSyncAlreadyRunning(err error) bool {
	return errors.Is(err, ErrSyncAlreadyRunning)
}

func IsSourceNotConfigured(err error) bool {
	return errors.Is(err, ErrSourceNotConfigured)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
