package tests

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/repository"
	testingutil "github.com/postlane/postlane/testing"
	"github.com/postlane/postlane/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailJobRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		jobRepo := repository.NewEmailJobRepository(testDB.DB)

		tenant, err := fixtures.CreateTestTenant()
		require.NoError(t, err)

		t.Run("ClaimNext claims a due pending job", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			created, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "a@example.com")
			require.NoError(t, err)

			claimed, err := jobRepo.ClaimNext(ctx, "worker-1")
			require.NoError(t, err)
			require.NotNil(t, claimed)
			assert.Equal(t, created.ID, claimed.ID)
			assert.Equal(t, models.JobStatusProcessing, claimed.Status)
			require.NotNil(t, claimed.WorkerID)
			assert.Equal(t, "worker-1", *claimed.WorkerID)

			// A second claim finds the queue drained.
			next, err := jobRepo.ClaimNext(ctx, "worker-2")
			require.NoError(t, err)
			assert.Nil(t, next)
		})

		t.Run("ClaimNext skips future-scheduled jobs", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			job, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "b@example.com")
			require.NoError(t, err)
			job.ScheduledFor = utils.UTCNow().Add(time.Hour)
			require.NoError(t, testDB.DB.Save(job).Error)

			claimed, err := jobRepo.ClaimNext(ctx, "worker-1")
			require.NoError(t, err)
			assert.Nil(t, claimed)
		})

		t.Run("ClaimNext prefers higher priority", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			low, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "low@example.com")
			require.NoError(t, err)
			high, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "high@example.com")
			require.NoError(t, err)
			high.Priority = 10
			require.NoError(t, testDB.DB.Save(high).Error)

			claimed, err := jobRepo.ClaimNext(ctx, "worker-1")
			require.NoError(t, err)
			require.NotNil(t, claimed)
			assert.Equal(t, high.ID, claimed.ID)

			claimed, err = jobRepo.ClaimNext(ctx, "worker-1")
			require.NoError(t, err)
			require.NotNil(t, claimed)
			assert.Equal(t, low.ID, claimed.ID)
		})

		t.Run("concurrent claims never share a job", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			const jobCount = 10
			for i := 0; i < jobCount; i++ {
				_, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "c@example.com")
				require.NoError(t, err)
			}

			var mu sync.Mutex
			seen := make(map[uint]int)
			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						job, err := jobRepo.ClaimNext(ctx, "racer")
						if err != nil || job == nil {
							return
						}
						mu.Lock()
						seen[job.ID]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Len(t, seen, jobCount)
			for id, count := range seen {
				assert.Equal(t, 1, count, "job %d claimed more than once", id)
			}
		})

		t.Run("Complete marks success and clears the error", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			job, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "d@example.com")
			require.NoError(t, err)

			require.NoError(t, jobRepo.Complete(ctx, job.ID, true, ""))

			got, err := jobRepo.ByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusCompleted, got.Status)
			assert.Nil(t, got.LastError)
		})

		t.Run("ScheduleRetry re-queues with backoff then fails terminally", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			job, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "e@example.com")
			require.NoError(t, err)
			claimed, err := jobRepo.ClaimNext(ctx, "worker-1")
			require.NoError(t, err)
			require.NotNil(t, claimed)

			require.NoError(t, jobRepo.Complete(ctx, job.ID, false, "sink unavailable"))

			before := utils.UTCNow()
			retried, err := jobRepo.ScheduleRetry(ctx, job.ID, 3)
			require.NoError(t, err)
			assert.True(t, retried)

			got, err := jobRepo.ByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusPending, got.Status)
			assert.Equal(t, 1, got.AttemptCount)
			assert.Nil(t, got.WorkerID)
			require.NotNil(t, got.LastError)
			assert.Equal(t, "sink unavailable", *got.LastError)
			// scheduled_for moved into the future by the backoff delay.
			assert.True(t, got.ScheduledFor.After(before))

			// Second retry: attempt 2 of 3 still re-queues.
			retried, err = jobRepo.ScheduleRetry(ctx, job.ID, 3)
			require.NoError(t, err)
			assert.True(t, retried)

			// Third: attempts exhausted, the job fails terminally.
			retried, err = jobRepo.ScheduleRetry(ctx, job.ID, 3)
			require.NoError(t, err)
			assert.False(t, retried)

			got, err = jobRepo.ByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, got.Status)
			assert.Equal(t, 3, got.AttemptCount)

			// A failed job is never claimable again.
			claimed, err = jobRepo.ClaimNext(ctx, "worker-1")
			require.NoError(t, err)
			assert.Nil(t, claimed)
		})

		t.Run("Fail bypasses remaining attempts", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			job, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "f@example.com")
			require.NoError(t, err)

			require.NoError(t, jobRepo.Fail(ctx, job.ID, "recipient invalid"))

			got, err := jobRepo.ByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, got.Status)
			require.NotNil(t, got.LastError)
			assert.Equal(t, "recipient invalid", *got.LastError)
		})

		t.Run("ByFilter filters by status and type", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())
			tenant, err = fixtures.CreateTestTenant()
			require.NoError(t, err)

			job1, err := fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "g@example.com")
			require.NoError(t, err)
			_, err = fixtures.CreateTestTriggerJob(tenant.ID, "welcome", "h@example.com")
			require.NoError(t, err)
			require.NoError(t, jobRepo.Complete(ctx, job1.ID, true, ""))

			status := models.JobStatusPending
			rows, err := jobRepo.ByFilter(ctx, models.EmailJobFilter{TenantID: &tenant.ID, Status: &status}, "id ASC", 10, 0)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "h@example.com", rows[0].RecipientEmail)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestTriggerDedupRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		dedupRepo := repository.NewTriggerDedupRepository(testDB.DB)

		tenant, err := fixtures.CreateTestTenant()
		require.NoError(t, err)

		t.Run("ByKey returns nil for an unseen key", func(t *testing.T) {
			rec, err := dedupRepo.ByKey(ctx, tenant.ID, "welcome", "a@example.com")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})

		t.Run("MarkSent then ByKey reports sent", func(t *testing.T) {
			sentAt := utils.UTCNow()
			require.NoError(t, dedupRepo.MarkSent(ctx, tenant.ID, "welcome", "a@example.com", sentAt))

			rec, err := dedupRepo.ByKey(ctx, tenant.ID, "welcome", "a@example.com")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.True(t, rec.Sent)
			require.NotNil(t, rec.SentAt)

			// The same trigger for a different recipient is unaffected.
			other, err := dedupRepo.ByKey(ctx, tenant.ID, "welcome", "b@example.com")
			require.NoError(t, err)
			assert.Nil(t, other)
		})

		t.Run("MarkSent is idempotent", func(t *testing.T) {
			require.NoError(t, dedupRepo.MarkSent(ctx, tenant.ID, "welcome", "a@example.com", utils.UTCNow()))
			require.NoError(t, dedupRepo.MarkSent(ctx, tenant.ID, "welcome", "a@example.com", utils.UTCNow()))

			var count int64
			require.NoError(t, testDB.DB.Model(&models.TriggerDedupRecord{}).
				Where("tenant_id = ? AND trigger_type = ? AND recipient_email = ?", tenant.ID, "welcome", "a@example.com").
				Count(&count).Error)
			assert.EqualValues(t, 1, count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestMemberRecordRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		memberRepo := repository.NewMemberRecordRepository(testDB.DB)

		tenant, err := fixtures.CreateTestTenant()
		require.NoError(t, err)
		audience, err := fixtures.CreateTestAudience(tenant.ID)
		require.NoError(t, err)

		t.Run("Upsert is keyed by audience and email", func(t *testing.T) {
			rec := &models.MemberRecord{
				AudienceID:     audience.ID,
				Email:          "member@example.com",
				FirstName:      "Old",
				LastName:       "Name",
				SourceMemberID: "mem_1",
			}
			require.NoError(t, memberRepo.Upsert(ctx, rec))

			// A re-sync overwrites names in place instead of duplicating.
			updated := &models.MemberRecord{
				AudienceID:     audience.ID,
				Email:          "member@example.com",
				FirstName:      "New",
				LastName:       "Name",
				SourceMemberID: "mem_1",
			}
			require.NoError(t, memberRepo.Upsert(ctx, updated))

			count, err := memberRepo.CountByAudience(ctx, audience.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 1, count)

			rows, err := memberRepo.ListByAudience(ctx, audience.ID, 10, 0)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "New", rows[0].FirstName)
		})

		t.Run("CountByAudience scopes to one audience", func(t *testing.T) {
			other, err := fixtures.CreateTestAudience(tenant.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestMembers(other.ID, 3)
			require.NoError(t, err)

			count, err := memberRepo.CountByAudience(ctx, other.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 3, count)

			count, err = memberRepo.CountByAudience(ctx, audience.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 1, count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestSyncJobRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		syncRepo := repository.NewSyncJobRepository(testDB.DB)

		tenant, err := fixtures.CreateTestTenant()
		require.NoError(t, err)
		audience, err := fixtures.CreateTestAudience(tenant.ID)
		require.NoError(t, err)

		job := &models.SyncJob{
			UUID:             uuid.New(),
			TenantID:         tenant.ID,
			AudienceID:       audience.ID,
			SourceAudienceID: audience.SourceAudienceID,
			Status:           models.SyncStatusPending,
			StartedAt:        utils.UTCNow(),
		}
		require.NoError(t, syncRepo.Save(ctx, job))

		t.Run("ByUUID finds the job", func(t *testing.T) {
			got, err := syncRepo.ByUUID(ctx, job.UUID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, job.ID, got.ID)
		})

		t.Run("Update persists progress and failure samples", func(t *testing.T) {
			job.Status = models.SyncStatusProcessing
			job.CurrentPhase = models.SyncPhaseSyncingToSink
			job.TotalMembers = 100
			job.ProcessedCount = 40
			job.FailedEmails = append(job.FailedEmails, "bad@example.com")
			require.NoError(t, syncRepo.Update(ctx, job))

			got, err := syncRepo.ByUUID(ctx, job.UUID)
			require.NoError(t, err)
			assert.Equal(t, 40, got.ProcessedCount)
			assert.Equal(t, models.SyncPhaseSyncingToSink, got.CurrentPhase)
			require.Len(t, got.FailedEmails, 1)
			assert.Equal(t, "bad@example.com", got.FailedEmails[0])
		})

		t.Run("ByFilter scopes by audience and status", func(t *testing.T) {
			status := models.SyncStatusProcessing
			rows, err := syncRepo.ByFilter(ctx, models.SyncJobFilter{AudienceID: &audience.ID, Status: &status})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, job.ID, rows[0].ID)

			completed := models.SyncStatusCompleted
			rows, err = syncRepo.ByFilter(ctx, models.SyncJobFilter{AudienceID: &audience.ID, Status: &completed})
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestTenantRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		tenantRepo := repository.NewTenantRepository(testDB.DB)

		tenant, err := fixtures.CreateTestTenant()
		require.NoError(t, err)

		t.Run("ByUUID resolves the tenant", func(t *testing.T) {
			got, err := tenantRepo.ByUUID(ctx, tenant.UUID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tenant.ID, got.ID)
			assert.True(t, got.HasSenderIdentity())
		})

		t.Run("ByUUID returns nil for unknown tenant", func(t *testing.T) {
			got, err := tenantRepo.ByUUID(ctx, uuid.New())
			require.NoError(t, err)
			assert.Nil(t, got)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestFlowRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		flowRepo := repository.NewFlowRepository(testDB.DB)

		tenant, err := fixtures.CreateTestTenant()
		require.NoError(t, err)
		flow, err := fixtures.CreateTestFlow(tenant.ID, 3)
		require.NoError(t, err)

		t.Run("StepByIndex and StepCount", func(t *testing.T) {
			step, err := flowRepo.StepByIndex(ctx, flow.ID, 1)
			require.NoError(t, err)
			require.NotNil(t, step)
			assert.Equal(t, "Step 2", step.Subject)

			count, err := flowRepo.StepCount(ctx, flow.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 3, count)
		})

		t.Run("AdvanceEnrollment moves and completes enrollees", func(t *testing.T) {
			enrollment, err := fixtures.EnrollTestMember(flow.ID, tenant.ID, "a@example.com", 0)
			require.NoError(t, err)

			require.NoError(t, flowRepo.AdvanceEnrollment(ctx, enrollment.ID, false, utils.UTCNow()))
			atStep1, err := flowRepo.EnrollmentsAtStep(ctx, flow.ID, 1)
			require.NoError(t, err)
			require.Len(t, atStep1, 1)
			assert.Equal(t, enrollment.ID, atStep1[0].ID)

			// Terminal advance drops the enrollee out of every step.
			require.NoError(t, flowRepo.AdvanceEnrollment(ctx, enrollment.ID, true, utils.UTCNow()))
			for step := 0; step < 3; step++ {
				rows, err := flowRepo.EnrollmentsAtStep(ctx, flow.ID, step)
				require.NoError(t, err)
				assert.Empty(t, rows)
			}
		})

		t.Run("IncrementFlowCounters accumulates", func(t *testing.T) {
			require.NoError(t, flowRepo.IncrementFlowCounters(ctx, flow.ID, 5, 2))
			require.NoError(t, flowRepo.IncrementFlowCounters(ctx, flow.ID, 3, 1))

			got, err := flowRepo.FlowByID(ctx, flow.ID)
			require.NoError(t, err)
			assert.Equal(t, 8, got.TriggeredCount)
			assert.Equal(t, 3, got.CompletedCount)
		})

		return nil
	})
	require.NoError(t, err)
}
