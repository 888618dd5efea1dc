package rbac

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-admin/meridian-admin/internal/resource"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

type mockStore struct {
	grants    map[int64]map[int64]struct{}
	roleIDs   map[int64]struct{}
	roleNames map[int64][]string
	roleUsers map[int64][]int64
	codes     map[int64][]string

	replaceErr       error
	replacedRole     int64
	replacedKind     resource.Kind
	replacedIDs      []int64
	replacedUserID   int64
	replacedRoleIDs  []int64
	codesCalls       int
	replaceCalled    bool
	userRolesCalled  bool
}

func newMockStore() *mockStore {
	return &mockStore{
		grants:    make(map[int64]map[int64]struct{}),
		roleIDs:   map[int64]struct{}{1: {}, 2: {}},
		roleNames: make(map[int64][]string),
		roleUsers: make(map[int64][]int64),
		codes:     make(map[int64][]string),
	}
}

func (m *mockStore) Grant(ctx context.Context, roleID int64, kind resource.Kind) (map[int64]struct{}, error) {
	return m.grants[roleID], nil
}

func (m *mockStore) ReplaceGrant(ctx context.Context, roleID int64, kind resource.Kind, ids []int64) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaceCalled = true
	m.replacedRole = roleID
	m.replacedKind = kind
	m.replacedIDs = ids
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	m.grants[roleID] = set
	return nil
}

func (m *mockStore) UserRoleNames(ctx context.Context, userID int64) ([]string, error) {
	return m.roleNames[userID], nil
}

func (m *mockStore) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.userRolesCalled = true
	m.replacedUserID = userID
	m.replacedRoleIDs = roleIDs
	return nil
}

func (m *mockStore) RoleIDs(ctx context.Context) (map[int64]struct{}, error) {
	return m.roleIDs, nil
}

func (m *mockStore) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	return m.roleUsers[roleID], nil
}

func (m *mockStore) AssignedUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, users := range m.roleUsers {
		for _, id := range users {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (m *mockStore) PermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	m.codesCalls++
	return m.codes[userID], nil
}

type stubLeaves struct {
	leaves map[int64]struct{}
}

func (s stubLeaves) LeafIDs(ctx context.Context, kind resource.Kind) (map[int64]struct{}, error) {
	return s.leaves, nil
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestService(t *testing.T, store *mockStore, leaves map[int64]struct{}) (*Service, *redis.Client, *stubEnqueuer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewPermissionCache(client, time.Minute)
	enqueuer := &stubEnqueuer{}
	warmup := func(userIDs []int64) (*asynq.Task, error) {
		return asynq.NewTask("authz:perm_warmup", nil), nil
	}
	svc := NewService(store, stubLeaves{leaves: leaves}, cache, enqueuer, warmup, slog.Default())
	return svc, client, enqueuer
}

func TestAssignGrantReplacesSet(t *testing.T) {
	store := newMockStore()
	svc, _, enqueuer := newTestService(t, store, map[int64]struct{}{10: {}, 11: {}})
	store.roleUsers[1] = []int64{5, 6}

	err := svc.AssignGrant(context.Background(), 1, resource.KindMenu, []int64{11, 10, 11})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !store.replaceCalled {
		t.Fatalf("expected replace to be called")
	}
	// Duplicates collapse and order is normalized.
	if len(store.replacedIDs) != 2 || store.replacedIDs[0] != 10 || store.replacedIDs[1] != 11 {
		t.Fatalf("expected deduped ids [10 11], got %v", store.replacedIDs)
	}
	if len(enqueuer.tasks) != 1 {
		t.Fatalf("expected warmup task enqueued, got %d", len(enqueuer.tasks))
	}
}

func TestAssignGrantUnknownRole(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(t, store, map[int64]struct{}{10: {}})
	err := svc.AssignGrant(context.Background(), 99, resource.KindMenu, []int64{10})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.replaceCalled {
		t.Fatalf("expected no replacement for unknown role")
	}
}

func TestAssignGrantRejectsNonLeaves(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(t, store, map[int64]struct{}{10: {}})
	err := svc.AssignGrant(context.Background(), 1, resource.KindMenu, []int64{10, 42})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if store.replaceCalled {
		t.Fatalf("validation failures must not apply anything")
	}
}

func TestAssignGrantEmptySetAllowed(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(t, store, map[int64]struct{}{10: {}})
	if err := svc.AssignGrant(context.Background(), 1, resource.KindMenu, nil); err != nil {
		t.Fatalf("expected empty replacement to revoke everything, got %v", err)
	}
	if len(store.replacedIDs) != 0 {
		t.Fatalf("expected empty grant, got %v", store.replacedIDs)
	}
}

func TestAssignGrantPropagatesConflict(t *testing.T) {
	store := newMockStore()
	store.replaceErr = ErrConflict
	svc, _, _ := newTestService(t, store, map[int64]struct{}{10: {}})
	err := svc.AssignGrant(context.Background(), 1, resource.KindMenu, []int64{10})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAssignGrantInvalidatesAffectedUsers(t *testing.T) {
	store := newMockStore()
	svc, client, _ := newTestService(t, store, map[int64]struct{}{10: {}})
	store.roleUsers[1] = []int64{5}

	ctx := context.Background()
	if err := client.Set(ctx, shared.PermCacheKey(5), `["users:view"]`, 0).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if err := svc.AssignGrant(ctx, 1, resource.KindAPI, []int64{10}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := client.Get(ctx, shared.PermCacheKey(5)).Err(); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected cache entry dropped, got %v", err)
	}
}

func TestAssignUserRolesUnknownRole(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(t, store, nil)
	err := svc.AssignUserRoles(context.Background(), 5, []int64{1, 99})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if store.userRolesCalled {
		t.Fatalf("expected no replacement for unknown role")
	}
}

func TestAssignUserRolesInvalidatesCache(t *testing.T) {
	store := newMockStore()
	svc, client, enqueuer := newTestService(t, store, nil)

	ctx := context.Background()
	if err := client.Set(ctx, shared.PermCacheKey(5), `["stale:code"]`, 0).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if err := svc.AssignUserRoles(ctx, 5, []int64{2, 1}); err != nil {
		t.Fatalf("assign roles: %v", err)
	}
	if len(store.replacedRoleIDs) != 2 || store.replacedRoleIDs[0] != 1 {
		t.Fatalf("expected normalized role ids [1 2], got %v", store.replacedRoleIDs)
	}
	if err := client.Get(ctx, shared.PermCacheKey(5)).Err(); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected cache entry dropped, got %v", err)
	}
	if len(enqueuer.tasks) != 1 {
		t.Fatalf("expected warmup task enqueued")
	}
}

func TestPrincipalReadsThroughCache(t *testing.T) {
	store := newMockStore()
	store.roleNames[5] = []string{"editor"}
	store.codes[5] = []string{"users:view"}
	svc, _, _ := newTestService(t, store, nil)

	ctx := context.Background()
	first, err := svc.Principal(ctx, 5)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if !first.HasPermission("users:view") {
		t.Fatalf("expected derived code present")
	}
	if _, err := svc.Principal(ctx, 5); err != nil {
		t.Fatalf("principal second read: %v", err)
	}
	// Second resolution is served from the cache.
	if store.codesCalls != 1 {
		t.Fatalf("expected 1 store derivation, got %d", store.codesCalls)
	}
}

func TestRefreshPermissionsPrimesCache(t *testing.T) {
	store := newMockStore()
	store.codes[5] = []string{"reports:view"}
	svc, client, _ := newTestService(t, store, nil)

	ctx := context.Background()
	codes, err := svc.RefreshPermissions(ctx, 5)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(codes) != 1 || codes[0] != "reports:view" {
		t.Fatalf("unexpected codes %v", codes)
	}
	if err := client.Get(ctx, shared.PermCacheKey(5)).Err(); err != nil {
		t.Fatalf("expected cache primed, got %v", err)
	}
}

func TestEnqueueFailureDoesNotFailAssignment(t *testing.T) {
	store := newMockStore()
	svc, _, enqueuer := newTestService(t, store, map[int64]struct{}{10: {}})
	store.roleUsers[1] = []int64{5}
	enqueuer.err = errors.New("queue down")

	if err := svc.AssignGrant(context.Background(), 1, resource.KindMenu, []int64{10}); err != nil {
		t.Fatalf("warmup enqueue is best-effort, got %v", err)
	}
}
