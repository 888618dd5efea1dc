package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-admin/meridian-admin/internal/jobs"
)

// Refresher recomputes and caches a user's derived permission codes.
// Satisfied by the RBAC service.
type Refresher interface {
	RefreshPermissions(ctx context.Context, userID int64) ([]string, error)
	AssignedUserIDs(ctx context.Context) ([]int64, error)
}

// PermCacheWarmupJob rebuilds derived permission-code caches in the
// background so the first request after an assignment change does not pay
// the recomputation cost.
type PermCacheWarmupJob struct {
	refresher Refresher
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewPermCacheWarmupJob constructs the job.
func NewPermCacheWarmupJob(refresher Refresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermCacheWarmupJob {
	return &PermCacheWarmupJob{refresher: refresher, logger: logger, metrics: metrics}
}

// HandleWarmup processes TaskPermCacheWarmup tasks. A malformed payload is
// dropped rather than retried. Per-user refresh failures are logged and the
// remaining users still refresh; the task fails only when every user failed.
func (j *PermCacheWarmupJob) HandleWarmup(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("perm_cache_warmup")
	var payload PermCacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return fmt.Errorf("jobs: decode warmup payload: %v: %w", err, asynq.SkipRetry)
	}
	return tracker.End(j.refreshAll(ctx, payload.UserIDs))
}

// HandleRefresh processes the periodic TaskPermCacheRefresh task,
// rebuilding the cache for every user holding at least one role.
func (j *PermCacheWarmupJob) HandleRefresh(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("perm_cache_refresh")
	userIDs, err := j.refresher.AssignedUserIDs(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("jobs: enumerate users: %w", err))
	}
	return tracker.End(j.refreshAll(ctx, userIDs))
}

func (j *PermCacheWarmupJob) refreshAll(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	failed := 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := j.refresher.RefreshPermissions(ctx, userID); err != nil {
			failed++
			j.logger.Warn("refresh permissions",
				slog.Int64("user_id", userID),
				slog.Any("error", err))
		}
	}
	if failed == len(userIDs) {
		return fmt.Errorf("jobs: warmup failed for all %d users", failed)
	}
	j.logger.Info("permission cache warmed",
		slog.Int("users", len(userIDs)),
		slog.Int("failed", failed))
	return nil
}
