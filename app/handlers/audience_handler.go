// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/postlane/postlane/app/dto"
	businessflow "github.com/postlane/postlane/business_flow"
)

// AudienceHandlerInterface defines the contract for audience handlers
type AudienceHandlerInterface interface {
	ListAudiences(c fiber.Ctx) error
	ExportMembers(c fiber.Ctx) error
	ListSentEmails(c fiber.Ctx) error
}

// AudienceHandler handles audience-related HTTP requests
type AudienceHandler struct {
	audienceFlow businessflow.AudienceFlow
}

func (h *AudienceHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AudienceHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewAudienceHandler creates a new audience handler
func NewAudienceHandler(audienceFlow businessflow.AudienceFlow) *AudienceHandler {
	return &AudienceHandler{audienceFlow: audienceFlow}
}

// ListAudiences handles listing the tenant's audiences
// @Summary List audiences
// @Description List the tenant's synchronized audiences with their member counts and readiness
// @Tags Audiences
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListAudiencesResponse} "Audiences retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/audiences [get]
func (h *AudienceHandler) ListAudiences(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	result, err := h.audienceFlow.ListAudiences(createRequestContext(c, "/api/v1/audiences"), tenantID)
	if err != nil {
		log.Println("Audience listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list audiences", "LIST_AUDIENCES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Audiences retrieved successfully", result)
}

// ExportMembers handles downloading an audience's members as an Excel file
// @Summary Export audience members
// @Description Download all member records of an audience as an xlsx workbook
// @Tags Audiences
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Audience ID"
// @Success 200 {file} binary "Excel file"
// @Failure 400 {object} dto.APIResponse "Invalid audience ID"
// @Failure 404 {object} dto.APIResponse "Audience not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/audiences/{id}/export [get]
func (h *AudienceHandler) ExportMembers(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	audienceID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid audience ID", "INVALID_AUDIENCE_ID", nil)
	}

	// Exports walk every member page; allow more than the default timeout.
	filename, content, err := h.audienceFlow.DownloadAudienceMembersExcel(
		createRequestContextWithTimeout(c, "/api/v1/audiences/:id/export", 2*time.Minute),
		tenantID, uint(audienceID),
	)
	if err != nil {
		if businessflow.IsAudienceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Audience not found", "AUDIENCE_NOT_FOUND", nil)
		}
		log.Println("Member export failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export members", "EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(content)
}

// ListSentEmails handles listing the tenant's delivered broadcasts
// @Summary List sent emails
// @Description List the tenant's delivered broadcasts, newest first
// @Tags Audiences
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset (default 0)"
// @Success 200 {object} dto.APIResponse{data=dto.ListSentEmailsResponse} "Sent emails retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/sent-emails [get]
func (h *AudienceHandler) ListSentEmails(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	result, err := h.audienceFlow.ListSentEmails(createRequestContext(c, "/api/v1/sent-emails"), tenantID, limit, offset)
	if err != nil {
		log.Println("Sent email listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list sent emails", "LIST_SENT_EMAILS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Sent emails retrieved successfully", result)
}
