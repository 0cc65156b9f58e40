// Package registry maps a short service name (the first path segment of a
// proxied request) to the upstream it fronts and the auth header it expects.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Descriptor describes one upstream service the proxy can route to.
type Descriptor struct {
	Name          string
	UpstreamURL   string
	AuthHeader    string
	AuthPrefix    string // empty for services that take the bare token
	CredentialKey string
	// ExtraHeaders are set on every outbound request to this service,
	// after credential injection, and never come from the client.
	ExtraHeaders map[string]string
}

// defaults is the static table of well-known services. Bit-exact: CLIs
// and integration tests depend on these names, hosts and header shapes.
var defaults = []Descriptor{
	{Name: "anthropic", UpstreamURL: "https://api.anthropic.com", AuthHeader: "x-api-key", AuthPrefix: "", CredentialKey: "api_key"},
	{Name: "openai", UpstreamURL: "https://api.openai.com", AuthHeader: "Authorization", AuthPrefix: "Bearer ", CredentialKey: "api_key"},
	{Name: "github", UpstreamURL: "https://api.github.com", AuthHeader: "Authorization", AuthPrefix: "Bearer ", CredentialKey: "token"},
	{Name: "slack", UpstreamURL: "https://slack.com/api", AuthHeader: "Authorization", AuthPrefix: "Bearer ", CredentialKey: "bot_token"},
	{Name: "discord", UpstreamURL: "https://discord.com/api", AuthHeader: "Authorization", AuthPrefix: "Bot ", CredentialKey: "bot_token"},
}

// Registry holds a name -> Descriptor mapping, built from the static
// defaults and mutated only through Register/Override. Safe for concurrent
// use: built once at startup, then effectively read-only, but guarded by an
// RWMutex in case a caller registers services after serving has begun.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Descriptor
}

// New returns a Registry seeded with the default service table.
func New() *Registry {
	r := &Registry{services: make(map[string]Descriptor, len(defaults))}
	for _, d := range defaults {
		r.services[d.Name] = d
	}
	return r
}

// Register adds or replaces a service descriptor wholesale. Name is
// lowercased before insertion.
func (r *Registry) Register(d Descriptor) error {
	name := strings.ToLower(strings.TrimSpace(d.Name))
	if name == "" {
		return fmt.Errorf("registering service: name must not be empty")
	}
	if d.UpstreamURL == "" || d.AuthHeader == "" || d.CredentialKey == "" {
		return fmt.Errorf("registering service %q: upstream_url, auth_header and credential_key are required", name)
	}
	d.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = d
	return nil
}

// Override shallow-merges non-zero fields of patch into the existing
// descriptor for name. It is an error to override a name that was never
// registered.
func (r *Registry) Override(name string, patch Descriptor) error {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.services[name]
	if !ok {
		return fmt.Errorf("overriding service %q: not registered", name)
	}
	if patch.UpstreamURL != "" {
		existing.UpstreamURL = patch.UpstreamURL
	}
	if patch.AuthHeader != "" {
		existing.AuthHeader = patch.AuthHeader
	}
	if patch.AuthPrefix != "" {
		existing.AuthPrefix = patch.AuthPrefix
	}
	if patch.CredentialKey != "" {
		existing.CredentialKey = patch.CredentialKey
	}
	if patch.ExtraHeaders != nil {
		if existing.ExtraHeaders == nil {
			existing.ExtraHeaders = make(map[string]string, len(patch.ExtraHeaders))
		}
		for k, v := range patch.ExtraHeaders {
			existing.ExtraHeaders[k] = v
		}
	}
	r.services[name] = existing
	return nil
}

// Get looks up a service by name, case-insensitively.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.services[strings.ToLower(name)]
	return d, ok
}

// All returns every registered descriptor, sorted by name for deterministic
// output (used by /_hostmap).
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.services))
	for _, d := range r.services {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AuthHeaderNames returns the distinct auth header names used by any
// registered service, lowercased, for the proxy's header-strip step (it
// must strip every service's auth header, not just the target's).
func (r *Registry) AuthHeaderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, d := range r.services {
		seen[strings.ToLower(d.AuthHeader)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// FilterAllowed returns a new Registry containing only the services named
// in allowed (case-insensitive), preserving their full descriptors. This is
// how the proxy turns its allowed_services allowlist into the effective
// routable set.
func (r *Registry) FilterAllowed(allowed []string) *Registry {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{services: make(map[string]Descriptor, len(set))}
	for name, d := range r.services {
		if _, ok := set[name]; ok {
			out.services[name] = d
		}
	}
	return out
}
