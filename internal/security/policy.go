package security

import (
	"fmt"
	"slices"
)

// ToolPolicy restricts which tools may be offered to and called by the
// model. Deny-first: a denied tool is always rejected; a non-empty allow
// list rejects anything not on it; an empty allow list allows all.
type ToolPolicy struct {
	Allowed []string `json:"allowed_tools" yaml:"allowed_tools"`
	Denied  []string `json:"denied_tools" yaml:"denied_tools"`
}

// NewToolPolicy creates a policy from allow and deny lists.
func NewToolPolicy(allowed, denied []string) *ToolPolicy {
	return &ToolPolicy{
		Allowed: slices.Clone(allowed),
		Denied:  slices.Clone(denied),
	}
}

// CheckToolAllowed returns nil if the tool is allowed. Nil policy allows all.
func (p *ToolPolicy) CheckToolAllowed(name string) error {
	if p == nil {
		return nil
	}
	return checkAllowDeny(name, p.Allowed, p.Denied, "tool")
}

// Allows reports whether the tool is allowed.
func (p *ToolPolicy) Allows(name string) bool {
	return p.CheckToolAllowed(name) == nil
}

// checkAllowDeny implements deny-first, then allow-list logic for exact matches.
func checkAllowDeny(value string, allowed, denied []string, label string) error {
	if slices.Contains(denied, value) {
		return fmt.Errorf("%w: %s %q is explicitly denied by policy", ErrPermissionDenied, label, value)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, value) {
		return fmt.Errorf("%w: %s %q is not in the policy allow list", ErrPermissionDenied, label, value)
	}
	return nil
}
