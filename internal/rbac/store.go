package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/platform/db"
	"github.com/meridian-admin/meridian-admin/internal/resource"
)

const serializationFailure = "40001"

// Store provides PostgreSQL backed persistence for grants and user-role
// memberships. Replacement writes are versioned: the losing writer of a
// race observes ErrConflict instead of a silently merged set.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Grant returns the leaf ids a role holds for one kind. Satisfies the
// resource package's GrantReader.
func (s *Store) Grant(ctx context.Context, roleID int64, kind resource.Kind) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT resource_id FROM role_grants WHERE role_id = $1 AND kind = $2`,
		roleID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("rbac: load grant: %w", err)
	}
	defer rows.Close()
	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rbac: scan grant: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: load grant: %w", err)
	}
	return ids, nil
}

// GrantSet returns the versioned grant for a role and kind.
func (s *Store) GrantSet(ctx context.Context, roleID int64, kind resource.Kind) (GrantSet, error) {
	ids, err := s.Grant(ctx, roleID, kind)
	if err != nil {
		return GrantSet{}, err
	}
	set := GrantSet{RoleID: roleID, Kind: kind, IDs: ids}
	err = s.pool.QueryRow(ctx,
		`SELECT version FROM role_grant_versions WHERE role_id = $1 AND kind = $2`,
		roleID, string(kind)).Scan(&set.Version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return GrantSet{}, fmt.Errorf("rbac: grant version: %w", err)
	}
	return set, nil
}

// ReplaceGrant atomically overwrites a role's grant set for one kind. The
// whole replacement is visible or none of it; concurrent replaces of the
// same (role, kind) surface ErrConflict to the loser.
func (s *Store) ReplaceGrant(ctx context.Context, roleID int64, kind resource.Kind, ids []int64) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_grant_versions (role_id, kind, version) VALUES ($1, $2, 0)
			 ON CONFLICT (role_id, kind) DO NOTHING`,
			roleID, string(kind)); err != nil {
			return fmt.Errorf("rbac: seed grant version: %w", err)
		}
		var version int64
		if err := tx.QueryRow(ctx,
			`SELECT version FROM role_grant_versions WHERE role_id = $1 AND kind = $2`,
			roleID, string(kind)).Scan(&version); err != nil {
			return fmt.Errorf("rbac: read grant version: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM role_grants WHERE role_id = $1 AND kind = $2`,
			roleID, string(kind)); err != nil {
			return fmt.Errorf("rbac: clear grant: %w", err)
		}
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(
				`INSERT INTO role_grants (role_id, kind, resource_id) VALUES ($1, $2, $3)`,
				roleID, string(kind), id)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("rbac: write grant: %w", err)
			}
		}
		tag, err := tx.Exec(ctx,
			`UPDATE role_grant_versions SET version = version + 1
			 WHERE role_id = $1 AND kind = $2 AND version = $3`,
			roleID, string(kind), version)
		if err != nil {
			return fmt.Errorf("rbac: bump grant version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
	return mapConflict(err)
}

// UserRoleIDs returns the role ids assigned to a user.
func (s *Store) UserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user roles: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rbac: scan user role: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserRoleNames returns the role names assigned to a user.
func (s *Store) UserRoleNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user role names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("rbac: scan role name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ReplaceUserRoles atomically overwrites a user's role memberships with
// the same versioned replace used for grants.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_role_versions (user_id, version) VALUES ($1, 0)
			 ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
			return fmt.Errorf("rbac: seed user-role version: %w", err)
		}
		var version int64
		if err := tx.QueryRow(ctx,
			`SELECT version FROM user_role_versions WHERE user_id = $1`,
			userID).Scan(&version); err != nil {
			return fmt.Errorf("rbac: read user-role version: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("rbac: clear user roles: %w", err)
		}
		batch := &pgx.Batch{}
		for _, roleID := range roleIDs {
			batch.Queue(
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
				userID, roleID)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("rbac: write user roles: %w", err)
			}
		}
		tag, err := tx.Exec(ctx,
			`UPDATE user_role_versions SET version = version + 1
			 WHERE user_id = $1 AND version = $2`, userID, version)
		if err != nil {
			return fmt.Errorf("rbac: bump user-role version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
	return mapConflict(err)
}

// RoleIDs returns the set of currently known role ids.
func (s *Store) RoleIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM roles`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list role ids: %w", err)
	}
	defer rows.Close()
	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rbac: scan role id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// UsersWithRole returns every user id currently holding the role. Used to
// invalidate derived permission caches after a grant change.
func (s *Store) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: users with role: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rbac: scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignedUserIDs returns every user id holding at least one role. Drives
// the periodic permission-cache refresh.
func (s *Store) AssignedUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM user_roles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: assigned users: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rbac: scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PermissionCodes derives the deduplicated permission codes a user holds:
// the codes of granted api leaves across all of the user's roles.
func (s *Store) PermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT n.code
		 FROM resource_nodes n
		 JOIN role_grants g ON g.kind = n.kind AND g.resource_id = n.id
		 JOIN user_roles ur ON ur.role_id = g.role_id
		 WHERE ur.user_id = $1 AND n.kind = $2 AND n.code <> ''
		 ORDER BY n.code`,
		userID, string(resource.KindAPI))
	if err != nil {
		return nil, fmt.Errorf("rbac: permission codes: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("rbac: scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// AllPermissionCodes lists every code declared on api nodes.
func (s *Store) AllPermissionCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT code FROM resource_nodes WHERE kind = $1 AND code <> '' ORDER BY code`,
		string(resource.KindAPI))
	if err != nil {
		return nil, fmt.Errorf("rbac: all codes: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("rbac: scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// mapConflict folds repeatable-read serialization failures into
// ErrConflict so callers see one retryable error.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}
