package rbac

import (
	"log/slog"
	"strings"
	"sync"
)

// Policy is the compiled requirement for one permission code: the
// principal's code set must contain the code, or the principal holds the
// reserved super-admin role. A zero code means the declared requirement
// was malformed and the policy denies everyone but the super admin.
type Policy struct {
	code      string
	superRole string
}

// Allows evaluates the policy against a principal. Nil principals always
// deny.
func (p Policy) Allows(principal *Principal) bool {
	if principal == nil {
		return false
	}
	if p.superRole != "" && principal.HasRole(p.superRole) {
		return true
	}
	if p.code == "" {
		return false
	}
	return principal.HasPermission(p.code)
}

// Resolver synthesizes a policy per previously-unseen permission code and
// caches it. Safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	policies  map[string]Policy
	superRole string
}

// NewResolver builds a Resolver with the reserved super-admin role name.
// An empty name falls back to DefaultSuperAdminRole.
func NewResolver(superRole string) *Resolver {
	if strings.TrimSpace(superRole) == "" {
		superRole = DefaultSuperAdminRole
	}
	return &Resolver{
		policies:  make(map[string]Policy),
		superRole: FoldCode(superRole),
	}
}

// Resolve returns the policy for code, synthesizing it on first use.
func (r *Resolver) Resolve(code string) Policy {
	folded := FoldCode(code)
	r.mu.RLock()
	policy, ok := r.policies[folded]
	r.mu.RUnlock()
	if ok {
		return policy
	}

	policy = Policy{superRole: r.superRole}
	if wellFormedCode(folded) {
		policy.code = folded
	}
	r.mu.Lock()
	r.policies[folded] = policy
	r.mu.Unlock()
	return policy
}

// wellFormedCode accepts the <resource>:<action> convention. Anything else
// compiles into a deny-all policy.
func wellFormedCode(code string) bool {
	res, action, ok := strings.Cut(code, ":")
	if !ok || res == "" || action == "" {
		return false
	}
	return !strings.ContainsAny(code, " \t\n")
}

// DecisionRecorder counts allow/deny outcomes, satisfied by the metrics
// registry.
type DecisionRecorder interface {
	AuthzDecision(allowed bool)
}

// Enforcer turns a declared permission code into a binary allow/deny for
// the current principal. It never mutates state and fails closed.
type Enforcer struct {
	resolver *Resolver
	logger   *slog.Logger
	metrics  DecisionRecorder
}

// NewEnforcer constructs an Enforcer. Metrics may be nil.
func NewEnforcer(resolver *Resolver, logger *slog.Logger, metrics DecisionRecorder) *Enforcer {
	return &Enforcer{resolver: resolver, logger: logger, metrics: metrics}
}

// Authorize decides whether principal may invoke the operation protected
// by code.
func (e *Enforcer) Authorize(principal *Principal, code string) bool {
	allowed := e.resolver.Resolve(code).Allows(principal)
	if e.metrics != nil {
		e.metrics.AuthzDecision(allowed)
	}
	return allowed
}
