package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermCacheWarmup precomputes derived permission codes for a set
	// of users after an assignment commit.
	TaskPermCacheWarmup = "authz:perm_warmup"
	// TaskPermCacheRefresh periodically rebuilds the derived code sets of
	// every user holding at least one role.
	TaskPermCacheRefresh = "authz:perm_refresh"
)

// PermCacheWarmupPayload names the users whose permission caches should be
// rebuilt.
type PermCacheWarmupPayload struct {
	UserIDs []int64 `json:"user_ids"`
}

// NewPermCacheWarmupTask constructs a warmup task for the given users.
// Matches the task-builder signature the RBAC service expects.
func NewPermCacheWarmupTask(userIDs []int64) (*asynq.Task, error) {
	data, err := json.Marshal(PermCacheWarmupPayload{UserIDs: userIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermCacheWarmup, data), nil
}

// NewPermCacheRefreshTask constructs the periodic full-refresh task. It
// carries no payload; the handler enumerates users itself.
func NewPermCacheRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskPermCacheRefresh, nil)
}
