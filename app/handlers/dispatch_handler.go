// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/postlane/postlane/app/dto"
	businessflow "github.com/postlane/postlane/business_flow"
)

// DispatchHandlerInterface defines the contract for dispatch handlers
type DispatchHandlerInterface interface {
	EnqueueTriggerJob(c fiber.Ctx) error
	EnqueueFlowStepJob(c fiber.Ctx) error
	RunDispatch(c fiber.Ctx) error
	ListJobs(c fiber.Ctx) error
}

// DispatchHandler handles dispatch-queue HTTP requests
type DispatchHandler struct {
	dispatchFlow businessflow.DispatchFlow
	validator    *validator.Validate
}

func (h *DispatchHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *DispatchHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatchFlow businessflow.DispatchFlow) *DispatchHandler {
	return &DispatchHandler{
		dispatchFlow: dispatchFlow,
		validator:    validator.New(),
	}
}

// EnqueueTriggerJob handles enqueueing a single-recipient trigger send
// @Summary Enqueue trigger job
// @Description Enqueue a single-recipient email job fired by an application trigger
// @Tags Dispatch
// @Accept json
// @Produce json
// @Param request body dto.EnqueueTriggerJobRequest true "Trigger job data"
// @Success 201 {object} dto.APIResponse{data=dto.EnqueueJobResponse} "Job enqueued successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized - tenant not found or inactive"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/jobs/trigger [post]
func (h *DispatchHandler) EnqueueTriggerJob(c fiber.Ctx) error {
	var req dto.EnqueueTriggerJobRequest
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

	result, err := h.dispatchFlow.EnqueueTriggerJob(createRequestContext(c, "/api/v1/jobs/trigger"), &req, metadata)
	if err != nil {
		if status, code, msg, ok := mapDispatchError(err); ok {
			return h.ErrorResponse(c, status, msg, code, nil)
		}
		log.Println("Trigger job enqueue failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enqueue job", "ENQUEUE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Job enqueued successfully", result)
}

// EnqueueFlowStepJob handles enqueueing a flow-step send
// @Summary Enqueue flow step job
// @Description Enqueue an email job for one step of a multi-step flow; the audience is the flow's enrolled members
// @Tags Dispatch
// @Accept json
// @Produce json
// @Param request body dto.EnqueueFlowStepJobRequest true "Flow step job data"
// @Success 201 {object} dto.APIResponse{data=dto.EnqueueJobResponse} "Job enqueued successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized - tenant not found or inactive"
// @Failure 404 {object} dto.APIResponse "Flow or step not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/jobs/flow-step [post]
func (h *DispatchHandler) EnqueueFlowStepJob(c fiber.Ctx) error {
	var req dto.EnqueueFlowStepJobRequest
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

	result, err := h.dispatchFlow.EnqueueFlowStepJob(createRequestContext(c, "/api/v1/jobs/flow-step"), &req, metadata)
	if err != nil {
		if businessflow.IsFlowNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Flow not found", "FLOW_NOT_FOUND", nil)
		}
		if businessflow.IsFlowStepNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Flow step not found", "FLOW_STEP_NOT_FOUND", nil)
		}
		if status, code, msg, ok := mapDispatchError(err); ok {
			return h.ErrorResponse(c, status, msg, code, nil)
		}
		log.Println("Flow step job enqueue failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enqueue job", "ENQUEUE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Job enqueued successfully", result)
}

// RunDispatch handles running one dispatch cycle on demand
// @Summary Run dispatch cycle
// @Description Process pending jobs immediately instead of waiting for the periodic worker tick
// @Tags Dispatch
// @Accept json
// @Produce json
// @Param request body dto.RunDispatchRequest false "Run parameters"
// @Success 200 {object} dto.APIResponse{data=dto.RunDispatchResponse} "Dispatch cycle completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/dispatch/run [post]
func (h *DispatchHandler) RunDispatch(c fiber.Ctx) error {
	var req dto.RunDispatchRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	// A full run can outlast the default request timeout when the queue is
	// deep, so give it the worker budget plus headroom.
	result, err := h.dispatchFlow.RunDispatch(createRequestContextWithTimeout(c, "/api/v1/dispatch/run", 2*time.Minute), &req, metadata)
	if err != nil {
		log.Println("Dispatch run failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Dispatch run failed", "DISPATCH_RUN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Dispatch cycle completed", result)
}

// ListJobs handles listing a tenant's dispatch jobs
// @Summary List dispatch jobs
// @Description List the tenant's dispatch jobs, newest first, with optional status and type filters
// @Tags Dispatch
// @Produce json
// @Param status query string false "Filter by status" Enums(pending, processing, completed, failed)
// @Param job_type query string false "Filter by job type" Enums(trigger, flow_step)
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListJobsResponse} "Jobs retrieved successfully"
// @Failure 400 {object} dto.APIResponse "Invalid pagination parameters"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/jobs [get]
func (h *DispatchHandler) ListJobs(c fiber.Ctx) error {
	tenantID, ok := c.Locals("tenant_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant ID not found in context", "MISSING_TENANT_ID", nil)
	}

	req := dto.ListJobsRequest{TenantID: tenantID}
	if s := c.Query("status"); s != "" {
		req.Status = &s
	}
	if t := c.Query("job_type"); t != "" {
		req.JobType = &t
	}
	if p := c.Query("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page parameter", "INVALID_PAGE", nil)
		}
		req.Page = page
	}
	if ps := c.Query("page_size"); ps != "" {
		pageSize, err := strconv.Atoi(ps)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page_size parameter", "INVALID_PAGE_SIZE", nil)
		}
		req.PageSize = pageSize
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	result, err := h.dispatchFlow.ListJobs(createRequestContext(c, "/api/v1/jobs"), &req)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}
		log.Println("Job listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list jobs", "LIST_JOBS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Jobs retrieved successfully", result)
}

// mapDispatchError maps shared enqueue-path business errors to HTTP responses.
func mapDispatchError(err error) (status int, code, message string, ok bool) {
	switch {
	case businessflow.IsTenantNotFound(err):
		return fiber.StatusUnauthorized, "TENANT_NOT_FOUND", "Tenant not found", true
	case businessflow.IsTenantInactive(err):
		return fiber.StatusUnauthorized, "TENANT_INACTIVE", "Tenant account is inactive", true
	case businessflow.IsInvalidRecipient(err):
		return fiber.StatusBadRequest, "INVALID_RECIPIENT", "Recipient email is invalid", true
	}
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		switch be.Code {
		case "EMPTY_SUBJECT", "EMPTY_BODY", "INVALID_SCHEDULE_AT", "SCHEDULE_IN_PAST":
			return fiber.StatusBadRequest, be.Code, be.Message, true
		}
	}
	return 0, "", "", false
}
