package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/repository"
	"github.com/postlane/postlane/utils"
	"github.com/redis/go-redis/v9"
)

// ProgressTracker keeps per-sync progress in three tiers: an in-process map
// for the hot path, the sync_jobs row as the durable source of truth, and an
// optional Redis mirror for cheap cross-process polling. The DB row always
// wins; the cache never replaces it.
type ProgressTracker struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.SyncJob

	syncRepo repository.SyncJobRepository
	cache    *redis.Client // nil when caching is disabled
	prefix   string
	ttl      time.Duration
	logger   *log.Logger
}

func NewProgressTracker(syncRepo repository.SyncJobRepository, cache *redis.Client, prefix string, ttl time.Duration, logger *log.Logger) *ProgressTracker {
	if prefix == "" {
		prefix = "postlane:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ProgressTracker{
		jobs:     make(map[uuid.UUID]*models.SyncJob),
		syncRepo: syncRepo,
		cache:    cache,
		prefix:   prefix,
		ttl:      ttl,
		logger:   logger,
	}
}

// Update persists the job row and refreshes the in-memory and cached views.
func (t *ProgressTracker) Update(ctx context.Context, job *models.SyncJob) error {
	job.UpdatedAt = utils.UTCNow()
	if err := t.syncRepo.Update(ctx, job); err != nil {
		return err
	}

	cp := *job
	cp.FailedEmails = append([]string(nil), job.FailedEmails...)

	t.mu.Lock()
	t.jobs[job.UUID] = &cp
	t.mu.Unlock()

	t.mirror(ctx, &cp)
	return nil
}

// Forget drops the in-memory entry once the sync reaches a terminal state.
// The Redis mirror ages out on its TTL; the DB row remains queryable.
func (t *ProgressTracker) Forget(id uuid.UUID) {
	t.mu.Lock()
	delete(t.jobs, id)
	t.mu.Unlock()
}

// Snapshot returns the freshest in-process view of the sync row, falling
// back to the Redis mirror. Returns (nil, nil) when neither tier knows the
// sync; callers then read the DB row directly.
func (t *ProgressTracker) Snapshot(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	t.mu.RLock()
	j, ok := t.jobs[id]
	t.mu.RUnlock()
	if ok {
		cp := *j
		return &cp, nil
	}

	if t.cache == nil {
		return nil, nil
	}
	raw, err := t.cache.Get(ctx, t.cacheKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var cached models.SyncJob
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// mirror writes the row snapshot to Redis. Best-effort: cache failures are
// logged and never fail the sync.
func (t *ProgressTracker) mirror(ctx context.Context, job *models.SyncJob) {
	if t.cache == nil {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, t.cacheKey(job.UUID), raw, t.ttl).Err(); err != nil {
		t.logger.Printf("progress: cache mirror for sync %s failed: %v", job.UUID, err)
	}
}

func (t *ProgressTracker) cacheKey(id uuid.UUID) string {
	return t.prefix + "sync_progress:" + id.String()
}
