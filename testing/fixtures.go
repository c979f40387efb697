// Package testing provides test utilities and database setup for testing the dispatch system
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/utils"
	"golang.org/x/crypto/bcrypt"
)

// TestAPIKey is the plain API key every fixture tenant is created with.
const TestAPIKey = "test-api-key-0123456789abcdef"

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestTenant creates an active tenant with a full sender identity
func (tf *TestFixtures) CreateTestTenant() (*models.Tenant, error) {
	hashedKey, err := bcrypt.GenerateFromPassword([]byte(TestAPIKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api key: %w", err)
	}

	suffix := rand.Intn(1000000)
	tenant := &models.Tenant{
		UUID:        uuid.New(),
		Name:        fmt.Sprintf("Acme %d", suffix),
		FromAddress: fmt.Sprintf("hello%d@acme.example", suffix),
		FromName:    "Acme Mail",
		APIKeyHash:  string(hashedKey),
		IsActive:    true,
	}

	if err := tf.DB.DB.Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tenant: %w", err)
	}
	return tenant, nil
}

// CreateTestTenantWithoutSender creates an active tenant missing its sender identity
func (tf *TestFixtures) CreateTestTenantWithoutSender() (*models.Tenant, error) {
	tenant, err := tf.CreateTestTenant()
	if err != nil {
		return nil, err
	}
	tenant.FromAddress = ""
	tenant.FromName = ""
	if err := tf.DB.DB.Save(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to clear sender identity: %w", err)
	}
	return tenant, nil
}

// CreateTestAudience creates an audience for the tenant
func (tf *TestFixtures) CreateTestAudience(tenantID uint) (*models.Audience, error) {
	audience := &models.Audience{
		TenantID:         tenantID,
		Name:             fmt.Sprintf("Audience %d", rand.Intn(1000000)),
		SourceAudienceID: fmt.Sprintf("grp_%06d", rand.Intn(1000000)),
	}
	if err := tf.DB.DB.Create(audience).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audience: %w", err)
	}
	return audience, nil
}

// CreateTestTriggerJob creates a pending trigger job scheduled for now
func (tf *TestFixtures) CreateTestTriggerJob(tenantID uint, triggerType, email string) (*models.EmailJob, error) {
	job := &models.EmailJob{
		JobType:        models.JobTypeTrigger,
		TenantID:       tenantID,
		TriggerType:    triggerType,
		RecipientEmail: email,
		Subject:        "Welcome aboard",
		HTMLBody:       "<p>Welcome!</p>",
		TextBody:       "Welcome!",
		Status:         models.JobStatusPending,
		ScheduledFor:   utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create test trigger job: %w", err)
	}
	return job, nil
}

// CreateTestFlow creates an active flow with the given number of steps
func (tf *TestFixtures) CreateTestFlow(tenantID uint, stepCount int) (*models.Flow, error) {
	flow := &models.Flow{
		TenantID: tenantID,
		Name:     fmt.Sprintf("Onboarding %d", rand.Intn(1000000)),
		IsActive: true,
	}
	if err := tf.DB.DB.Create(flow).Error; err != nil {
		return nil, fmt.Errorf("failed to create test flow: %w", err)
	}

	for i := 0; i < stepCount; i++ {
		step := &models.FlowStep{
			FlowID:     flow.ID,
			StepIndex:  i,
			Subject:    fmt.Sprintf("Step %d", i+1),
			HTMLBody:   fmt.Sprintf("<p>Step %d body</p>", i+1),
			DelayAfter: 24 * time.Hour,
		}
		if err := tf.DB.DB.Create(step).Error; err != nil {
			return nil, fmt.Errorf("failed to create test flow step %d: %w", i, err)
		}
	}
	return flow, nil
}

// EnrollTestMember parks a recipient at a step of a flow
func (tf *TestFixtures) EnrollTestMember(flowID, tenantID uint, email string, step int) (*models.FlowEnrollment, error) {
	enrollment := &models.FlowEnrollment{
		FlowID:      flowID,
		TenantID:    tenantID,
		Email:       email,
		CurrentStep: step,
		EnrolledAt:  utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(enrollment).Error; err != nil {
		return nil, fmt.Errorf("failed to enroll test member: %w", err)
	}
	return enrollment, nil
}

// CreateTestMembers inserts n member records into the audience
func (tf *TestFixtures) CreateTestMembers(audienceID uint, n int) ([]*models.MemberRecord, error) {
	members := make([]*models.MemberRecord, 0, n)
	for i := 0; i < n; i++ {
		m := &models.MemberRecord{
			AudienceID:     audienceID,
			Email:          fmt.Sprintf("member%d_%d@example.com", audienceID, i),
			FirstName:      "Member",
			LastName:       fmt.Sprintf("Number%d", i),
			FullName:       fmt.Sprintf("Member Number%d", i),
			SourceMemberID: fmt.Sprintf("mem_%d_%d", audienceID, i),
		}
		if err := tf.DB.DB.Create(m).Error; err != nil {
			return nil, fmt.Errorf("failed to create test member %d: %w", i, err)
		}
		members = append(members, m)
	}
	return members, nil
}
