// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/postlane/postlane/app/dto"
	businessflow "github.com/postlane/postlane/business_flow"
)

// SyncHandlerInterface defines the contract for bulk-sync handlers
type SyncHandlerInterface interface {
	StartSync(c fiber.Ctx) error
	GetSyncProgress(c fiber.Ctx) error
}

// SyncHandler handles bulk member synchronization HTTP requests
type SyncHandler struct {
	syncFlow  businessflow.SyncFlow
	validator *validator.Validate
}

func (h *SyncHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SyncHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncFlow businessflow.SyncFlow) *SyncHandler {
	return &SyncHandler{
		syncFlow:  syncFlow,
		validator: validator.New(),
	}
}

// StartSync handles starting a bulk member sync
// @Summary Start bulk sync
// @Description Create a local audience and start streaming members from the configured source into it and the email provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.StartSyncRequest true "Sync parameters"
// @Success 202 {object} dto.APIResponse{data=dto.StartSyncResponse} "Sync accepted"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized - tenant not found"
// @Failure 409 {object} dto.APIResponse "A sync is already running for this audience"
// @Failure 502 {object} dto.APIResponse "Email provider unavailable"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/audiences/sync [post]
func (h *SyncHandler) StartSync(c fiber.Ctx) error {
	var req dto.StartSyncRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}
	req.TenantID = tenantID

	// Sink audience creation is synchronous and rate limited; give it room.
	result, err := h.syncFlow.StartBulkSync(createRequestContextWithTimeout(c, "/api/v1/audiences/sync", 60*time.Second), &req, metadata)
	if err != nil {
		if businessflow.IsTenantNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found", "TENANT_NOT_FOUND", nil)
		}
		if businessflow.IsSyncAlreadyRunning(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "A sync is already running for this audience", "SYNC_ALREADY_RUNNING", nil)
		}
		if businessflow.IsSourceNotConfigured(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Member source is not configured", "SOURCE_NOT_CONFIGURED", nil)
		}
		log.Println("Bulk sync start failed", err)
		return h.ErrorResponse(c, fiber.StatusBadGateway, "Failed to start sync", "SYNC_START_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusAccepted, "Sync accepted", result)
}

// GetSyncProgress handles polling a sync job's progress
// @Summary Get sync progress
// @Description Return the durable progress of a bulk sync, including phase, counts, percentage and ETA
// @Tags Sync
// @Produce json
// @Param uuid path string true "Sync job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.SyncJobDTO} "Progress retrieved successfully"
// @Failure 400 {object} dto.APIResponse "Invalid UUID"
// @Failure 404 {object} dto.APIResponse "Sync job not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/audiences/sync/{uuid}/progress [get]
func (h *SyncHandler) GetSyncProgress(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	syncUUID := c.Params("uuid")
	if syncUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Sync UUID is required", "MISSING_SYNC_UUID", nil)
	}

	result, err := h.syncFlow.GetSyncProgress(createRequestContext(c, "/api/v1/audiences/sync/:uuid/progress"), tenantID, syncUUID)
	if err != nil {
		if businessflow.IsSyncJobNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Sync job not found", "SYNC_NOT_FOUND", nil)
		}
		var be *businessflow.BusinessError
		if errors.As(err, &be) && be.Code == "INVALID_SYNC_UUID" {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Sync UUID is invalid", "INVALID_SYNC_UUID", nil)
		}
		log.Println("Sync progress lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get sync progress", "SYNC_PROGRESS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Progress retrieved successfully", result)
}
