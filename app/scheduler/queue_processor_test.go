package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/postlane/postlane/config"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completion struct {
	jobID   uint
	success bool
	message string
}

type fakeJobRepo struct {
	mu    sync.Mutex
	queue []*models.EmailJob

	claimedBy   []string
	completions []completion
	retries     []uint
	fails       []uint
	retryResult bool
}

func (f *fakeJobRepo) ByID(ctx context.Context, id uint) (*models.EmailJob, error) { return nil, nil }
func (f *fakeJobRepo) Save(ctx context.Context, j *models.EmailJob) error          { return nil }
func (f *fakeJobRepo) SaveBatch(ctx context.Context, j []*models.EmailJob) error   { return nil }
func (f *fakeJobRepo) ByFilter(ctx context.Context, filter models.EmailJobFilter, orderBy string, limit, offset int) ([]*models.EmailJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) ClaimNext(ctx context.Context, workerID string) (*models.EmailJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	f.claimedBy = append(f.claimedBy, workerID)
	return job, nil
}

func (f *fakeJobRepo) Complete(ctx context.Context, jobID uint, success bool, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, completion{jobID: jobID, success: success, message: errorMessage})
	return nil
}

func (f *fakeJobRepo) ScheduleRetry(ctx context.Context, jobID uint, maxAttempts int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, jobID)
	return f.retryResult, nil
}

func (f *fakeJobRepo) Fail(ctx context.Context, jobID uint, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = append(f.fails, jobID)
	return nil
}

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		WorkerID:    "worker-test",
		Interval:    time.Minute,
		Budget:      time.Minute,
		MaxJobs:     100,
		MaxAttempts: 3,
	}
}

func triggerJob(id uint, email string) *models.EmailJob {
	return &models.EmailJob{
		ID:             id,
		JobType:        models.JobTypeTrigger,
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: email,
		Subject:        "Hi",
		HTMLBody:       "<p>hi</p>",
		ScheduledFor:   utils.UTCNow(),
	}
}

func newTestProcessor(jobs *fakeJobRepo, d *CampaignDispatcher, cfg config.WorkerConfig) *QueueProcessor {
	return NewQueueProcessor(jobs, d, cfg, config.LoggingConfig{}, nil)
}

func TestQueueProcessorDrainsQueue(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	jobs := &fakeJobRepo{queue: []*models.EmailJob{
		triggerJob(1, "a@example.com"),
		triggerJob(2, "b@example.com"),
		triggerJob(3, "c@example.com"),
	}}
	p := newTestProcessor(jobs, d, workerConfig())

	summary, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.JobsProcessed)
	assert.Equal(t, 3, summary.JobsSucceeded)
	assert.Equal(t, 0, summary.JobsFailed)
	assert.Equal(t, 3, summary.EmailsSent)

	// Every job finished cleanly and carried the worker id on its claim.
	require.Len(t, jobs.completions, 3)
	for _, c := range jobs.completions {
		assert.True(t, c.success)
	}
	for _, w := range jobs.claimedBy {
		assert.Equal(t, "worker-test", w)
	}
	assert.Empty(t, jobs.retries)
	assert.Empty(t, jobs.fails)
}

func TestQueueProcessorHonorsJobCap(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	jobs := &fakeJobRepo{queue: []*models.EmailJob{
		triggerJob(1, "a@example.com"),
		triggerJob(2, "b@example.com"),
		triggerJob(3, "c@example.com"),
	}}
	p := newTestProcessor(jobs, d, workerConfig())

	summary, err := p.RunOnce(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.JobsProcessed)

	// The third job is still queued for the next run.
	jobs.mu.Lock()
	remaining := len(jobs.queue)
	jobs.mu.Unlock()
	assert.Equal(t, 1, remaining)
}

func TestQueueProcessorValidationErrorFailsTerminally(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	jobs := &fakeJobRepo{queue: []*models.EmailJob{triggerJob(7, "not-an-email")}}
	p := newTestProcessor(jobs, d, workerConfig())

	summary, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.JobsProcessed)
	assert.Equal(t, 1, summary.JobsFailed)

	// A bad recipient can never succeed: no retry, straight to failed.
	assert.Equal(t, []uint{7}, jobs.fails)
	assert.Empty(t, jobs.retries)
	assert.Empty(t, jobs.completions)
}

func TestQueueProcessorRetryableFailureSchedulesRetry(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	sink := newFakeSink()
	sink.audienceErr = context.DeadlineExceeded
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, sink)

	jobs := &fakeJobRepo{queue: []*models.EmailJob{triggerJob(8, "a@example.com")}, retryResult: true}
	p := newTestProcessor(jobs, d, workerConfig())

	summary, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.JobsFailed)

	// The failure reason is recorded before the retry decision.
	require.Len(t, jobs.completions, 1)
	assert.False(t, jobs.completions[0].success)
	assert.NotEmpty(t, jobs.completions[0].message)
	assert.Equal(t, []uint{8}, jobs.retries)
	assert.Empty(t, jobs.fails)
}

func TestQueueProcessorStopsOnCancelledContext(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	jobs := &fakeJobRepo{queue: []*models.EmailJob{triggerJob(1, "a@example.com")}}
	p := newTestProcessor(jobs, d, workerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.RunOnce(ctx, 0)
	assert.Error(t, err)
	assert.Equal(t, 0, summary.JobsProcessed)
}
