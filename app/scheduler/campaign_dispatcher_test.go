package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/app/services"
	businessflow "github.com/postlane/postlane/business_flow"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- in-memory fakes shared by the scheduler tests ----

type noopLimiter struct{}

func (noopLimiter) AwaitTurn(ctx context.Context) error { return ctx.Err() }

type fakeSink struct {
	mu sync.Mutex

	audiences      []string
	contacts       map[string][]string // audienceID -> emails
	broadcasts     []services.BroadcastParams
	sent           []string
	deleted        []string
	contactErrFor  map[string]error // email -> error
	audienceErr    error
	broadcastErr   error
	sendErr        error
	nextAudienceID int
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		contacts:      make(map[string][]string),
		contactErrFor: make(map[string]error),
	}
}

func (f *fakeSink) CreateAudience(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audienceErr != nil {
		return "", f.audienceErr
	}
	f.nextAudienceID++
	id := fmt.Sprintf("aud_%d", f.nextAudienceID)
	f.audiences = append(f.audiences, name)
	return id, nil
}

func (f *fakeSink) DeleteAudience(ctx context.Context, audienceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, audienceID)
	return nil
}

func (f *fakeSink) CreateContact(ctx context.Context, audienceID, email, firstName, lastName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.contactErrFor[email]; ok {
		return "", err
	}
	f.contacts[audienceID] = append(f.contacts[audienceID], email)
	return "contact_" + email, nil
}

func (f *fakeSink) CreateBroadcast(ctx context.Context, p services.BroadcastParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	f.broadcasts = append(f.broadcasts, p)
	return fmt.Sprintf("bc_%d", len(f.broadcasts)), nil
}

func (f *fakeSink) SendBroadcast(ctx context.Context, broadcastID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, broadcastID)
	return nil
}

func (f *fakeSink) contactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.contacts {
		n += len(c)
	}
	return n
}

type fakeTenantRepo struct {
	tenants map[uint]*models.Tenant
}

func (f *fakeTenantRepo) ByID(ctx context.Context, id uint) (*models.Tenant, error) {
	return f.tenants[id], nil
}
func (f *fakeTenantRepo) Save(ctx context.Context, t *models.Tenant) error       { return nil }
func (f *fakeTenantRepo) SaveBatch(ctx context.Context, t []*models.Tenant) error { return nil }
func (f *fakeTenantRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.UUID == id {
			return t, nil
		}
	}
	return nil, nil
}

type fakeDedupRepo struct {
	mu   sync.Mutex
	rows map[string]*models.TriggerDedupRecord
}

func newFakeDedupRepo() *fakeDedupRepo {
	return &fakeDedupRepo{rows: make(map[string]*models.TriggerDedupRecord)}
}

func dedupKey(tenantID uint, triggerType, email string) string {
	return fmt.Sprintf("%d|%s|%s", tenantID, triggerType, email)
}

func (f *fakeDedupRepo) ByKey(ctx context.Context, tenantID uint, triggerType, recipientEmail string) (*models.TriggerDedupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[dedupKey(tenantID, triggerType, recipientEmail)], nil
}

func (f *fakeDedupRepo) MarkSent(ctx context.Context, tenantID uint, triggerType, recipientEmail string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[dedupKey(tenantID, triggerType, recipientEmail)] = &models.TriggerDedupRecord{
		TenantID:       tenantID,
		TriggerType:    triggerType,
		RecipientEmail: recipientEmail,
		Sent:           true,
		SentAt:         &sentAt,
	}
	return nil
}

type fakeFlowRepo struct {
	flows       map[uint]*models.Flow
	steps       map[uint]map[int]*models.FlowStep
	enrollments map[uint][]*models.FlowEnrollment // flowID -> enrollments

	advanced   []uint
	completed  []uint
	triggered  int
	terminally int
}

func newFakeFlowRepo() *fakeFlowRepo {
	return &fakeFlowRepo{
		flows:       make(map[uint]*models.Flow),
		steps:       make(map[uint]map[int]*models.FlowStep),
		enrollments: make(map[uint][]*models.FlowEnrollment),
	}
}

func (f *fakeFlowRepo) FlowByID(ctx context.Context, flowID uint) (*models.Flow, error) {
	return f.flows[flowID], nil
}

func (f *fakeFlowRepo) StepByIndex(ctx context.Context, flowID uint, stepIndex int) (*models.FlowStep, error) {
	return f.steps[flowID][stepIndex], nil
}

func (f *fakeFlowRepo) StepCount(ctx context.Context, flowID uint) (int64, error) {
	return int64(len(f.steps[flowID])), nil
}

func (f *fakeFlowRepo) EnrollmentsAtStep(ctx context.Context, flowID uint, stepIndex int) ([]*models.FlowEnrollment, error) {
	var out []*models.FlowEnrollment
	for _, e := range f.enrollments[flowID] {
		if e.CurrentStep == stepIndex && !e.Completed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeFlowRepo) AdvanceEnrollment(ctx context.Context, enrollmentID uint, terminal bool, now time.Time) error {
	f.advanced = append(f.advanced, enrollmentID)
	if terminal {
		f.completed = append(f.completed, enrollmentID)
	}
	return nil
}

func (f *fakeFlowRepo) IncrementFlowCounters(ctx context.Context, flowID uint, triggered, completed int) error {
	f.triggered += triggered
	f.terminally += completed
	return nil
}

func (f *fakeFlowRepo) SaveEnrollment(ctx context.Context, e *models.FlowEnrollment) error { return nil }
func (f *fakeFlowRepo) SaveFlow(ctx context.Context, fl *models.Flow) error               { return nil }
func (f *fakeFlowRepo) SaveStep(ctx context.Context, s *models.FlowStep) error            { return nil }

type fakeSentRepo struct {
	mu   sync.Mutex
	rows []*models.SentEmail
}

func (f *fakeSentRepo) ByID(ctx context.Context, id uint) (*models.SentEmail, error) { return nil, nil }
func (f *fakeSentRepo) Save(ctx context.Context, row *models.SentEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}
func (f *fakeSentRepo) SaveBatch(ctx context.Context, rows []*models.SentEmail) error { return nil }
func (f *fakeSentRepo) ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.SentEmail, error) {
	return f.rows, nil
}

func activeTenant(id uint) *models.Tenant {
	return &models.Tenant{
		ID:          id,
		UUID:        uuid.New(),
		Name:        "Acme",
		FromAddress: "hello@acme.example",
		FromName:    "Acme Mail",
		IsActive:    true,
	}
}

func newTestDispatcher(tenants *fakeTenantRepo, dedup *fakeDedupRepo, flows *fakeFlowRepo, sent *fakeSentRepo, sink *fakeSink) *CampaignDispatcher {
	return NewCampaignDispatcher(tenants, dedup, flows, sent, sink, noopLimiter{}, time.Hour, nil)
}

// ---- tests ----

func TestDispatcherTriggerSend(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	dedup := newFakeDedupRepo()
	sink := newFakeSink()
	sent := &fakeSentRepo{}
	d := newTestDispatcher(tenants, dedup, newFakeFlowRepo(), sent, sink)

	job := &models.EmailJob{
		ID:             10,
		JobType:        models.JobTypeTrigger,
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: "User@Example.com",
		Subject:        "Hi",
		HTMLBody:       "<p>hi</p>",
		ScheduledFor:   utils.UTCNow(),
	}

	result := d.Run(context.Background(), job)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SentCount)

	// The recipient email is normalized before any sink call.
	assert.Equal(t, 1, sink.contactCount())
	require.Len(t, sink.broadcasts, 1)
	assert.Equal(t, "Acme Mail <hello@acme.example>", sink.broadcasts[0].From)
	assert.Len(t, sink.sent, 1)

	// The dedup record now blocks a second send.
	rec, err := dedup.ByKey(context.Background(), 1, "welcome", "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Sent)

	require.Len(t, sent.rows, 1)
	assert.Equal(t, 1, sent.rows[0].RecipientCount)
}

func TestDispatcherTriggerDeduplicates(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	dedup := newFakeDedupRepo()
	require.NoError(t, dedup.MarkSent(context.Background(), 1, "welcome", "user@example.com", utils.UTCNow()))
	sink := newFakeSink()
	d := newTestDispatcher(tenants, dedup, newFakeFlowRepo(), &fakeSentRepo{}, sink)

	job := &models.EmailJob{
		ID:             11,
		JobType:        models.JobTypeTrigger,
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: "user@example.com",
		Subject:        "Hi",
		HTMLBody:       "<p>hi</p>",
	}

	result := d.Run(context.Background(), job)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.SentCount)
	// No sink traffic at all for an absorbed duplicate.
	assert.Empty(t, sink.audiences)
	assert.Empty(t, sink.broadcasts)
}

func TestDispatcherTriggerInvalidRecipient(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	job := &models.EmailJob{
		ID:             12,
		JobType:        models.JobTypeTrigger,
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: "not-an-email",
	}

	result := d.Run(context.Background(), job)
	assert.False(t, result.Success)
	assert.True(t, businessflow.IsInvalidRecipient(result.Err))
}

func TestDispatcherMissingSenderIdentity(t *testing.T) {
	tenant := activeTenant(1)
	tenant.FromAddress = ""
	tenant.FromName = ""
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: tenant}}
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	job := &models.EmailJob{
		ID:             13,
		JobType:        models.JobTypeTrigger,
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: "user@example.com",
	}

	result := d.Run(context.Background(), job)
	assert.False(t, result.Success)
	assert.True(t, businessflow.IsSenderIdentityMissing(result.Err))
}

func TestDispatcherUnknownJobType(t *testing.T) {
	d := newTestDispatcher(&fakeTenantRepo{tenants: map[uint]*models.Tenant{}}, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	result := d.Run(context.Background(), &models.EmailJob{ID: 14, JobType: "mystery"})
	assert.False(t, result.Success)
	assert.True(t, businessflow.IsUnknownJobType(result.Err))
}

func TestDispatcherSinkFailureSurfaces(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	sink := newFakeSink()
	sink.broadcastErr = services.ErrSinkRateLimited
	d := newTestDispatcher(tenants, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, sink)

	job := &models.EmailJob{
		ID:             15,
		JobType:        models.JobTypeTrigger,
		TenantID:       1,
		TriggerType:    "welcome",
		RecipientEmail: "user@example.com",
		Subject:        "Hi",
	}

	result := d.Run(context.Background(), job)
	assert.False(t, result.Success)
	assert.True(t, errors.Is(result.Err, services.ErrSinkRateLimited))
}

func TestDispatcherFlowStepSend(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	flows := newFakeFlowRepo()
	flows.flows[5] = &models.Flow{ID: 5, TenantID: 1, Name: "Onboarding", IsActive: true}
	flows.steps[5] = map[int]*models.FlowStep{
		0: {FlowID: 5, StepIndex: 0, Subject: "Step 1", HTMLBody: "<p>one</p>"},
		1: {FlowID: 5, StepIndex: 1, Subject: "Step 2", HTMLBody: "<p>two</p>"},
	}
	flows.enrollments[5] = []*models.FlowEnrollment{
		{ID: 100, FlowID: 5, TenantID: 1, Email: "a@example.com", CurrentStep: 1},
		{ID: 101, FlowID: 5, TenantID: 1, Email: "b@example.com", CurrentStep: 1},
		{ID: 102, FlowID: 5, TenantID: 1, Email: "c@example.com", CurrentStep: 0},
	}
	sink := newFakeSink()
	d := newTestDispatcher(tenants, newFakeDedupRepo(), flows, &fakeSentRepo{}, sink)

	flowID := uint(5)
	stepIndex := 1
	job := &models.EmailJob{
		ID:        20,
		JobType:   models.JobTypeFlowStep,
		TenantID:  1,
		FlowID:    &flowID,
		StepIndex: &stepIndex,
	}

	result := d.Run(context.Background(), job)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SentCount)

	// Only the two enrollees parked at step 1 were added.
	assert.Equal(t, 2, sink.contactCount())
	require.Len(t, sink.broadcasts, 1)
	assert.Equal(t, "Step 2", sink.broadcasts[0].Subject)

	// Step 1 is the last step, so both enrollees completed.
	assert.ElementsMatch(t, []uint{100, 101}, flows.advanced)
	assert.ElementsMatch(t, []uint{100, 101}, flows.completed)
	assert.Equal(t, 2, flows.triggered)
	assert.Equal(t, 2, flows.terminally)
}

func TestDispatcherFlowStepNoEnrollees(t *testing.T) {
	tenants := &fakeTenantRepo{tenants: map[uint]*models.Tenant{1: activeTenant(1)}}
	flows := newFakeFlowRepo()
	flows.flows[5] = &models.Flow{ID: 5, TenantID: 1, IsActive: true}
	flows.steps[5] = map[int]*models.FlowStep{0: {FlowID: 5, StepIndex: 0, Subject: "Step 1"}}
	sink := newFakeSink()
	d := newTestDispatcher(tenants, newFakeDedupRepo(), flows, &fakeSentRepo{}, sink)

	flowID := uint(5)
	stepIndex := 0
	job := &models.EmailJob{ID: 21, JobType: models.JobTypeFlowStep, TenantID: 1, FlowID: &flowID, StepIndex: &stepIndex}

	result := d.Run(context.Background(), job)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.SentCount)
	assert.Empty(t, sink.broadcasts)
}

func TestDispatcherFlowStepMissingPayload(t *testing.T) {
	d := newTestDispatcher(&fakeTenantRepo{tenants: map[uint]*models.Tenant{}}, newFakeDedupRepo(), newFakeFlowRepo(), &fakeSentRepo{}, newFakeSink())

	result := d.Run(context.Background(), &models.EmailJob{ID: 22, JobType: models.JobTypeFlowStep, TenantID: 1})
	assert.False(t, result.Success)
	assert.True(t, businessflow.IsJobPayloadInvalid(result.Err))
}

func TestRecipientNames(t *testing.T) {
	first, last := recipientNames(&models.EmailJob{RecipientPayload: []byte(`{"first_name":"Ada","last_name":"Lovelace"}`)})
	assert.Equal(t, "Ada", first)
	assert.Equal(t, "Lovelace", last)

	first, last = recipientNames(&models.EmailJob{RecipientPayload: []byte(`{"name":"Grace Brewster Hopper"}`)})
	assert.Equal(t, "Grace", first)
	assert.Equal(t, "Brewster Hopper", last)

	first, last = recipientNames(&models.EmailJob{})
	assert.Empty(t, first)
	assert.Empty(t, last)

	first, last = recipientNames(&models.EmailJob{RecipientPayload: []byte(`not-json`)})
	assert.Empty(t, first)
	assert.Empty(t, last)
}
