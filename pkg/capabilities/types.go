// Package capabilities implements CapabilityGrant pattern matching: the
// admission check that decides whether an EffectIntent's kind is covered by
// a named grant before policy even runs. Grounded on the teacher's
// ToolCatalog (a flat registry keyed by capability ID), generalized here to
// pattern-based matching plus expiry.
package capabilities

import (
	"strings"
	"time"
)

// Grant is a named bundle of effect-kind patterns an intent's cap_ref must
// resolve to before policy evaluation runs. A pattern is either "*" (matches
// everything), "prefix.*" (matches by prefix), or an exact effect kind.
type Grant struct {
	Name        string     `json:"name"`
	EffectKinds []string   `json:"effect_kinds"`
	Expiry      *time.Time `json:"expiry,omitempty"`
}

// Allows reports whether kind is covered by one of the grant's patterns.
func (g Grant) Allows(kind string) bool {
	for _, pattern := range g.EffectKinds {
		if matchPattern(pattern, kind) {
			return true
		}
	}
	return false
}

// Expired reports whether the grant's expiry (if any) has passed now.
func (g Grant) Expired(now time.Time) bool {
	return g.Expiry != nil && now.After(*g.Expiry)
}

func matchPattern(pattern, kind string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(kind, prefix)
	}
	return pattern == kind
}

// Registry is the set of currently known grants, keyed by name (the
// EffectIntent.CapRef value).
type Registry struct {
	grants map[string]Grant
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{grants: make(map[string]Grant)}
}

// Put installs or replaces a grant.
func (r *Registry) Put(g Grant) {
	r.grants[g.Name] = g
}

// Remove deletes a grant by name.
func (r *Registry) Remove(name string) {
	delete(r.grants, name)
}

// Lookup returns the grant registered under name.
func (r *Registry) Lookup(name string) (Grant, bool) {
	g, ok := r.grants[name]
	return g, ok
}

// Snapshot returns a copy of every currently installed grant, keyed by
// name, for the world kernel to fold into its own Snapshot value.
func (r *Registry) Snapshot() map[string]Grant {
	out := make(map[string]Grant, len(r.grants))
	for k, v := range r.grants {
		out[k] = v
	}
	return out
}
