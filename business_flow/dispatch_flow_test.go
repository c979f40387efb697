package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/app/dto"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTenantRepo struct {
	tenant *models.Tenant
}

func (s *stubTenantRepo) ByID(ctx context.Context, id uint) (*models.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, nil
}
func (s *stubTenantRepo) Save(ctx context.Context, t *models.Tenant) error        { return nil }
func (s *stubTenantRepo) SaveBatch(ctx context.Context, t []*models.Tenant) error { return nil }
func (s *stubTenantRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if s.tenant != nil && s.tenant.UUID == id {
		return s.tenant, nil
	}
	return nil, nil
}

type stubJobRepo struct {
	saved  []*models.EmailJob
	nextID uint
}

func (s *stubJobRepo) ByID(ctx context.Context, id uint) (*models.EmailJob, error) { return nil, nil }
func (s *stubJobRepo) Save(ctx context.Context, job *models.EmailJob) error {
	s.nextID++
	job.ID = s.nextID
	s.saved = append(s.saved, job)
	return nil
}
func (s *stubJobRepo) SaveBatch(ctx context.Context, jobs []*models.EmailJob) error { return nil }
func (s *stubJobRepo) ClaimNext(ctx context.Context, workerID string) (*models.EmailJob, error) {
	return nil, nil
}
func (s *stubJobRepo) Complete(ctx context.Context, jobID uint, success bool, errorMessage string) error {
	return nil
}
func (s *stubJobRepo) ScheduleRetry(ctx context.Context, jobID uint, maxAttempts int) (bool, error) {
	return false, nil
}
func (s *stubJobRepo) Fail(ctx context.Context, jobID uint, errorMessage string) error { return nil }
func (s *stubJobRepo) ByFilter(ctx context.Context, filter models.EmailJobFilter, orderBy string, limit, offset int) ([]*models.EmailJob, error) {
	return nil, nil
}

type stubFlowRepo struct {
	flow *models.Flow
	step *models.FlowStep
}

func (s *stubFlowRepo) FlowByID(ctx context.Context, flowID uint) (*models.Flow, error) {
	if s.flow != nil && s.flow.ID == flowID {
		return s.flow, nil
	}
	return nil, nil
}
func (s *stubFlowRepo) StepByIndex(ctx context.Context, flowID uint, stepIndex int) (*models.FlowStep, error) {
	if s.step != nil && s.step.StepIndex == stepIndex {
		return s.step, nil
	}
	return nil, nil
}
func (s *stubFlowRepo) StepCount(ctx context.Context, flowID uint) (int64, error) { return 0, nil }
func (s *stubFlowRepo) EnrollmentsAtStep(ctx context.Context, flowID uint, stepIndex int) ([]*models.FlowEnrollment, error) {
	return nil, nil
}
func (s *stubFlowRepo) AdvanceEnrollment(ctx context.Context, enrollmentID uint, terminal bool, now time.Time) error {
	return nil
}
func (s *stubFlowRepo) IncrementFlowCounters(ctx context.Context, flowID uint, triggered, completed int) error {
	return nil
}
func (s *stubFlowRepo) SaveEnrollment(ctx context.Context, e *models.FlowEnrollment) error { return nil }
func (s *stubFlowRepo) SaveFlow(ctx context.Context, f *models.Flow) error                 { return nil }
func (s *stubFlowRepo) SaveStep(ctx context.Context, st *models.FlowStep) error            { return nil }

func testDispatchFlow(jobs *stubJobRepo, flows *stubFlowRepo) DispatchFlow {
	tenant := &models.Tenant{ID: 1, UUID: uuid.New(), Name: "Acme", FromName: "Acme Mail", FromAddress: "hello@acme.example", IsActive: true}
	return NewDispatchFlow(jobs, &stubTenantRepo{tenant: tenant}, flows, nil, nil, nil)
}

func TestEnqueueTriggerJobValidation(t *testing.T) {
	meta := NewClientMetadata("127.0.0.1", "test")

	tests := []struct {
		name    string
		req     dto.EnqueueTriggerJobRequest
		checkFn func(error) bool
	}{
		{
			name:    "invalid recipient",
			req:     dto.EnqueueTriggerJobRequest{TenantID: 1, TriggerType: "welcome", RecipientEmail: "nope", Subject: "Hi", HTMLBody: "<p>hi</p>"},
			checkFn: IsInvalidRecipient,
		},
		{
			name: "empty subject",
			req:  dto.EnqueueTriggerJobRequest{TenantID: 1, TriggerType: "welcome", RecipientEmail: "a@example.com", Subject: "   ", HTMLBody: "<p>hi</p>"},
			checkFn: func(err error) bool {
				var be *BusinessError
				return errors.As(err, &be) && be.Code == "EMPTY_SUBJECT"
			},
		},
		{
			name: "empty body",
			req:  dto.EnqueueTriggerJobRequest{TenantID: 1, TriggerType: "welcome", RecipientEmail: "a@example.com", Subject: "Hi", HTMLBody: ""},
			checkFn: func(err error) bool {
				var be *BusinessError
				return errors.As(err, &be) && be.Code == "EMPTY_BODY"
			},
		},
		{
			name:    "unknown tenant",
			req:     dto.EnqueueTriggerJobRequest{TenantID: 99, TriggerType: "welcome", RecipientEmail: "a@example.com", Subject: "Hi", HTMLBody: "<p>hi</p>"},
			checkFn: IsTenantNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := testDispatchFlow(&stubJobRepo{}, &stubFlowRepo{})
			resp, err := flow.EnqueueTriggerJob(context.Background(), &tt.req, meta)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.True(t, tt.checkFn(err))
		})
	}
}

func TestEnqueueTriggerJobNormalizesRecipient(t *testing.T) {
	jobs := &stubJobRepo{}
	flow := testDispatchFlow(jobs, &stubFlowRepo{})

	resp, err := flow.EnqueueTriggerJob(context.Background(), &dto.EnqueueTriggerJobRequest{
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: "  User@Example.COM ",
		Subject:        "Hi",
		HTMLBody:       "<p>hi</p>",
	}, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, models.JobStatusPending, resp.Status)

	require.Len(t, jobs.saved, 1)
	saved := jobs.saved[0]
	assert.Equal(t, "user@example.com", saved.RecipientEmail)
	assert.Equal(t, models.JobTypeTrigger, saved.JobType)
	// Empty schedule_at means due now.
	assert.WithinDuration(t, utils.UTCNow(), saved.ScheduledFor, 5*time.Second)
}

func TestEnqueueFlowStepJobValidatesFlow(t *testing.T) {
	meta := NewClientMetadata("127.0.0.1", "test")

	t.Run("flow must exist and belong to the tenant", func(t *testing.T) {
		flow := testDispatchFlow(&stubJobRepo{}, &stubFlowRepo{
			flow: &models.Flow{ID: 5, TenantID: 2, IsActive: true}, // other tenant
		})
		_, err := flow.EnqueueFlowStepJob(context.Background(), &dto.EnqueueFlowStepJobRequest{TenantID: 1, FlowID: 5}, meta)
		require.Error(t, err)
		assert.True(t, IsFlowNotFound(err))
	})

	t.Run("step must exist", func(t *testing.T) {
		flow := testDispatchFlow(&stubJobRepo{}, &stubFlowRepo{
			flow: &models.Flow{ID: 5, TenantID: 1, IsActive: true},
		})
		_, err := flow.EnqueueFlowStepJob(context.Background(), &dto.EnqueueFlowStepJobRequest{TenantID: 1, FlowID: 5, StepIndex: 3}, meta)
		require.Error(t, err)
		assert.True(t, IsFlowStepNotFound(err))
	})

	t.Run("valid flow step copies the step content", func(t *testing.T) {
		jobs := &stubJobRepo{}
		flow := testDispatchFlow(jobs, &stubFlowRepo{
			flow: &models.Flow{ID: 5, TenantID: 1, IsActive: true},
			step: &models.FlowStep{FlowID: 5, StepIndex: 0, Subject: "Step 1", HTMLBody: "<p>one</p>"},
		})
		resp, err := flow.EnqueueFlowStepJob(context.Background(), &dto.EnqueueFlowStepJobRequest{TenantID: 1, FlowID: 5, StepIndex: 0}, meta)
		require.NoError(t, err)
		require.NotNil(t, resp)

		require.Len(t, jobs.saved, 1)
		saved := jobs.saved[0]
		assert.Equal(t, models.JobTypeFlowStep, saved.JobType)
		assert.Equal(t, "Step 1", saved.Subject)
		require.NotNil(t, saved.FlowID)
		assert.EqualValues(t, 5, *saved.FlowID)
	})
}

func TestListJobsPagination(t *testing.T) {
	flow := testDispatchFlow(&stubJobRepo{}, &stubFlowRepo{})

	_, err := flow.ListJobs(context.Background(), &dto.ListJobsRequest{TenantID: 1, Page: -1})
	require.Error(t, err)
	assert.True(t, IsInvalidPage(err))

	_, err = flow.ListJobs(context.Background(), &dto.ListJobsRequest{TenantID: 1, PageSize: 500})
	require.Error(t, err)
	assert.True(t, IsInvalidPageSize(err))

	// Defaults apply when page and page_size are omitted.
	resp, err := flow.ListJobs(context.Background(), &dto.ListJobsRequest{TenantID: 1})
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestParseScheduleAt(t *testing.T) {
	t.Run("empty means now", func(t *testing.T) {
		got, err := parseScheduleAt("")
		require.NoError(t, err)
		assert.WithinDuration(t, utils.UTCNow(), got, 5*time.Second)
	})

	t.Run("valid RFC3339 future time", func(t *testing.T) {
		future := utils.UTCNow().Add(2 * time.Hour).Truncate(time.Second)
		got, err := parseScheduleAt(future.Format(time.RFC3339))
		require.NoError(t, err)
		assert.True(t, got.Equal(future))
	})

	t.Run("invalid format rejected", func(t *testing.T) {
		_, err := parseScheduleAt("tomorrow at noon")
		require.Error(t, err)
		var be *BusinessError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "INVALID_SCHEDULE_AT", be.Code)
	})

	t.Run("far past rejected", func(t *testing.T) {
		past := utils.UTCNow().Add(-48 * time.Hour)
		_, err := parseScheduleAt(past.Format(time.RFC3339))
		require.Error(t, err)
		var be *BusinessError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "SCHEDULE_IN_PAST", be.Code)
	})

	t.Run("small skew tolerated", func(t *testing.T) {
		recent := utils.UTCNow().Add(-time.Minute)
		got, err := parseScheduleAt(recent.Format(time.RFC3339))
		require.NoError(t, err)
		assert.False(t, got.IsZero())
	})
}

func TestToSyncJobDTO(t *testing.T) {
	started := utils.UTCNow().Add(-100 * time.Second)

	t.Run("percentage and ETA mid-run", func(t *testing.T) {
		job := models.SyncJob{
			UUID:           uuid.New(),
			Status:         models.SyncStatusProcessing,
			CurrentPhase:   models.SyncPhaseSyncingToSink,
			TotalMembers:   200,
			ProcessedCount: 50,
			StartedAt:      started,
			UpdatedAt:      started.Add(100 * time.Second),
		}
		d := ToSyncJobDTO(job)
		assert.InDelta(t, 25.0, d.Percentage, 0.01)
		// 50 members in 100s leaves 150 members at 2s each.
		assert.InDelta(t, 300.0, d.ETASeconds, 1.0)
	})

	t.Run("no ETA once terminal", func(t *testing.T) {
		job := models.SyncJob{
			UUID:           uuid.New(),
			Status:         models.SyncStatusCompleted,
			TotalMembers:   200,
			ProcessedCount: 200,
			StartedAt:      started,
			UpdatedAt:      utils.UTCNow(),
		}
		d := ToSyncJobDTO(job)
		assert.InDelta(t, 100.0, d.Percentage, 0.01)
		assert.Zero(t, d.ETASeconds)
	})

	t.Run("zero total yields zero percentage", func(t *testing.T) {
		d := ToSyncJobDTO(models.SyncJob{UUID: uuid.New(), StartedAt: started})
		assert.Zero(t, d.Percentage)
	})

	t.Run("error message carried over", func(t *testing.T) {
		msg := "fetch page 3: source returned 502"
		d := ToSyncJobDTO(models.SyncJob{UUID: uuid.New(), Status: models.SyncStatusFailed, Error: &msg, StartedAt: started})
		assert.Equal(t, msg, d.Error)
	})
}
