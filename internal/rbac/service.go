package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/meridian-admin/meridian-admin/internal/resource"
)

// GrantStore defines the persistence surface the assignment service needs.
type GrantStore interface {
	Grant(ctx context.Context, roleID int64, kind resource.Kind) (map[int64]struct{}, error)
	ReplaceGrant(ctx context.Context, roleID int64, kind resource.Kind, ids []int64) error
	UserRoleNames(ctx context.Context, userID int64) ([]string, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RoleIDs(ctx context.Context) (map[int64]struct{}, error)
	UsersWithRole(ctx context.Context, roleID int64) ([]int64, error)
	AssignedUserIDs(ctx context.Context) ([]int64, error)
	PermissionCodes(ctx context.Context, userID int64) ([]string, error)
}

// LeafSource exposes the assignable leaf ids of a kind's current snapshot.
type LeafSource interface {
	LeafIDs(ctx context.Context, kind resource.Kind) (map[int64]struct{}, error)
}

// Enqueuer schedules background work after a successful commit. Satisfied
// by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// WarmupTask builds the background task that precomputes permission codes
// for a set of users. Implemented by the jobs package; injected to keep
// this package free of task-payload concerns.
type WarmupTask func(userIDs []int64) (*asynq.Task, error)

// Service orchestrates grant assignment and principal resolution.
type Service struct {
	store   GrantStore
	leaves  LeafSource
	cache   *PermissionCache
	enqueue Enqueuer
	warmup  WarmupTask
	logger  *slog.Logger
}

// NewService constructs the assignment service. enqueue and warmup may be nil; cache
// warmup is then skipped and codes are computed on first use.
func NewService(store GrantStore, leaves LeafSource, cache *PermissionCache, enqueue Enqueuer, warmup WarmupTask, logger *slog.Logger) *Service {
	return &Service{store: store, leaves: leaves, cache: cache, enqueue: enqueue, warmup: warmup, logger: logger}
}

// AssignGrant replaces a role's entire grant set for one kind. Every id
// must be a leaf of the current snapshot; offenders are reported and
// nothing is applied. The permission cache of affected users is dropped
// synchronously once the replace commits.
func (s *Service) AssignGrant(ctx context.Context, roleID int64, kind resource.Kind, ids []int64) error {
	roles, err := s.store.RoleIDs(ctx)
	if err != nil {
		return err
	}
	if _, ok := roles[roleID]; !ok {
		return fmt.Errorf("%w: role %d", ErrNotFound, roleID)
	}

	leaves, err := s.leaves.LeafIDs(ctx, kind)
	if err != nil {
		return err
	}
	unique := dedupe(ids)
	var offenders []int64
	for _, id := range unique {
		if _, ok := leaves[id]; !ok {
			offenders = append(offenders, id)
		}
	}
	if len(offenders) > 0 {
		return fmt.Errorf("%w: ids %v are not assignable leaves of kind %s", ErrValidation, offenders, kind)
	}

	if err := s.store.ReplaceGrant(ctx, roleID, kind, unique); err != nil {
		return err
	}

	users, err := s.store.UsersWithRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("rbac: resolve affected users: %w", err)
	}
	if err := s.cache.Invalidate(ctx, users...); err != nil {
		// A stale derived-code cache would corrupt enforcement, so the
		// caller must see this failure.
		return err
	}
	s.enqueueWarmup(ctx, users)
	return nil
}

// AssignUserRoles replaces a user's role memberships wholesale.
func (s *Service) AssignUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	known, err := s.store.RoleIDs(ctx)
	if err != nil {
		return err
	}
	unique := dedupe(roleIDs)
	var offenders []int64
	for _, id := range unique {
		if _, ok := known[id]; !ok {
			offenders = append(offenders, id)
		}
	}
	if len(offenders) > 0 {
		return fmt.Errorf("%w: unknown role ids %v", ErrValidation, offenders)
	}

	if err := s.store.ReplaceUserRoles(ctx, userID, unique); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return err
	}
	s.enqueueWarmup(ctx, []int64{userID})
	return nil
}

// Principal resolves the claims for a user: role names plus the derived
// permission codes, read through the cache.
func (s *Service) Principal(ctx context.Context, userID int64) (*Principal, error) {
	roles, err := s.store.UserRoleNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes, hit, err := s.cache.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hit {
		if codes, err = s.RefreshPermissions(ctx, userID); err != nil {
			return nil, err
		}
	}
	return NewPrincipal(userID, roles, codes), nil
}

// RefreshPermissions recomputes and caches a user's derived codes.
func (s *Service) RefreshPermissions(ctx context.Context, userID int64) ([]string, error) {
	codes, err := s.store.PermissionCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// AssignedUserIDs lists every user currently holding a role. Used by the
// periodic cache refresh job.
func (s *Service) AssignedUserIDs(ctx context.Context) ([]int64, error) {
	return s.store.AssignedUserIDs(ctx)
}

// Grant exposes the stored grant set, for the checked-keys read path.
func (s *Service) Grant(ctx context.Context, roleID int64, kind resource.Kind) (map[int64]struct{}, error) {
	return s.store.Grant(ctx, roleID, kind)
}

// enqueueWarmup schedules best-effort precomputation of the derived code
// sets. Failure only costs a cold read later, so it is logged and dropped.
func (s *Service) enqueueWarmup(ctx context.Context, userIDs []int64) {
	if s.enqueue == nil || s.warmup == nil || len(userIDs) == 0 {
		return
	}
	task, err := s.warmup(userIDs)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("build warmup task", slog.Any("error", err))
		}
		return
	}
	if _, err := s.enqueue.EnqueueContext(ctx, task); err != nil {
		if s.logger != nil {
			s.logger.Warn("enqueue warmup task", slog.Any("error", err))
		}
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	return unique
}
