package rbac

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"

	"github.com/meridian-admin/meridian-admin/internal/resource"
)

// Sentinel errors for the RBAC layer.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrValidation indicates an assignment referencing unknown or
	// non-assignable ids. Never partially applied.
	ErrValidation = errors.New("rbac: validation failed")
	// ErrConflict indicates two writers raced on the same grant set. The
	// loser retries with fresh data; sets are never merged.
	ErrConflict = errors.New("rbac: concurrent modification")
)

// DefaultSuperAdminRole is the reserved role name bypassing every policy.
const DefaultSuperAdminRole = "admin"

// FoldCode normalizes a permission code or role name for comparison.
// Codes are case-insensitive by contract, so all storage and lookups go
// through the same unicode fold.
func FoldCode(code string) string {
	return cases.Fold().String(strings.TrimSpace(code))
}

// Principal describes the authenticated actor for one request: identity,
// role memberships and the derived permission-code set. Never persisted;
// its lifetime is the request.
type Principal struct {
	UserID      int64
	Roles       []string
	permissions map[string]struct{}
}

// NewPrincipal folds the supplied role names and permission codes once so
// per-request checks are set lookups.
func NewPrincipal(userID int64, roles, codes []string) *Principal {
	p := &Principal{
		UserID:      userID,
		Roles:       make([]string, 0, len(roles)),
		permissions: make(map[string]struct{}, len(codes)),
	}
	for _, role := range roles {
		if folded := FoldCode(role); folded != "" {
			p.Roles = append(p.Roles, folded)
		}
	}
	for _, code := range codes {
		if folded := FoldCode(code); folded != "" {
			p.permissions[folded] = struct{}{}
		}
	}
	return p
}

// HasRole reports membership in the named role.
func (p *Principal) HasRole(name string) bool {
	folded := FoldCode(name)
	for _, role := range p.Roles {
		if role == folded {
			return true
		}
	}
	return false
}

// HasPermission reports whether the derived code set contains code.
func (p *Principal) HasPermission(code string) bool {
	_, ok := p.permissions[FoldCode(code)]
	return ok
}

// PermissionCodes returns the folded code set, for claims serialization.
func (p *Principal) PermissionCodes() []string {
	codes := make([]string, 0, len(p.permissions))
	for code := range p.permissions {
		codes = append(codes, code)
	}
	return codes
}

// GrantSet is one role's versioned grant for a single resource kind.
type GrantSet struct {
	RoleID  int64
	Kind    resource.Kind
	IDs     map[int64]struct{}
	Version int64
}
