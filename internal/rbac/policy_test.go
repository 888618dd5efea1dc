package rbac

import (
	"log/slog"
	"testing"
)

func testPrincipal(roles []string, codes ...string) *Principal {
	return NewPrincipal(7, roles, codes)
}

func TestEnforcerAllowsGrantedCode(t *testing.T) {
	enforcer := NewEnforcer(NewResolver(""), slog.Default(), nil)
	principal := testPrincipal([]string{"editor"}, "users:view")
	if !enforcer.Authorize(principal, "users:view") {
		t.Fatalf("expected allow for granted code")
	}
	if enforcer.Authorize(principal, "users:edit") {
		t.Fatalf("expected deny for ungranted code")
	}
}

func TestEnforcerDeniesNilPrincipal(t *testing.T) {
	enforcer := NewEnforcer(NewResolver(""), slog.Default(), nil)
	if enforcer.Authorize(nil, "users:view") {
		t.Fatalf("expected deny for nil principal")
	}
}

func TestEnforcerCodesCaseInsensitive(t *testing.T) {
	enforcer := NewEnforcer(NewResolver(""), slog.Default(), nil)
	principal := testPrincipal([]string{"editor"}, "Users:View")
	if !enforcer.Authorize(principal, "USERS:view") {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestEnforcerMalformedCodeDeniesEveryone(t *testing.T) {
	enforcer := NewEnforcer(NewResolver(""), slog.Default(), nil)
	principal := testPrincipal([]string{"editor"}, "users:view", "users", "users:")
	for _, code := range []string{"", "users", ":view", "users:", "users :view"} {
		if enforcer.Authorize(principal, code) {
			t.Fatalf("expected deny for malformed code %q", code)
		}
	}
}

func TestEnforcerSuperAdminBypass(t *testing.T) {
	enforcer := NewEnforcer(NewResolver("admin"), slog.Default(), nil)
	root := testPrincipal([]string{"Admin"})
	if !enforcer.Authorize(root, "anything:at-all") {
		t.Fatalf("expected super admin to pass any policy")
	}
	// The bypass also covers codes that compile into deny-all.
	if !enforcer.Authorize(root, "not a code") {
		t.Fatalf("expected super admin to pass malformed policy")
	}
}

func TestResolverCachesPolicies(t *testing.T) {
	resolver := NewResolver("")
	first := resolver.Resolve("users:view")
	second := resolver.Resolve("USERS:VIEW")
	if first != second {
		t.Fatalf("expected folded codes to share one policy")
	}
}

func TestResolverCustomSuperRole(t *testing.T) {
	enforcer := NewEnforcer(NewResolver("platform-root"), slog.Default(), nil)
	if enforcer.Authorize(testPrincipal([]string{"admin"}), "users:view") {
		t.Fatalf("expected default admin role to lose bypass")
	}
	if !enforcer.Authorize(testPrincipal([]string{"platform-root"}), "users:view") {
		t.Fatalf("expected configured role to bypass")
	}
}

func TestWellFormedCode(t *testing.T) {
	valid := []string{"users:view", "resources:edit", "a:b"}
	for _, code := range valid {
		if !wellFormedCode(code) {
			t.Fatalf("expected %q well formed", code)
		}
	}
	invalid := []string{"", "users", "users:", ":view", "users :view", "users:view extra"}
	for _, code := range invalid {
		if wellFormedCode(code) {
			t.Fatalf("expected %q malformed", code)
		}
	}
}
