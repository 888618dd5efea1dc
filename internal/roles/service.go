package roles

import (
	"context"
	"errors"
	"strings"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, limit, offset int) ([]Role, int, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) ([]int64, error)
}

// CacheInvalidator drops derived permission codes for users. Satisfied by
// the RBAC permission cache; role deletion changes effective permissions
// for every member.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...int64) error
}

// Service handles role business logic.
type Service struct {
	repo  RepositoryPort
	cache CacheInvalidator
}

// NewService constructs a role service.
func NewService(repo RepositoryPort, cache CacheInvalidator) *Service {
	return &Service{repo: repo, cache: cache}
}

// ListRoles returns one page of roles and the total count.
func (s *Service) ListRoles(ctx context.Context, limit, offset int) ([]Role, int, error) {
	return s.repo.ListRoles(ctx, limit, offset)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role and drops the cached permission codes of its
// former members.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	affected, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if s.cache != nil && len(affected) > 0 {
		if err := s.cache.Invalidate(ctx, affected...); err != nil {
			return err
		}
	}
	return nil
}
