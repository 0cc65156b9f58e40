// Package credential provides a uniform Store contract over the concrete
// secret backends (OS keychain, encrypted file, 1Password, Vault, KeePassXC,
// systemd-creds, and an in-memory store for tests). Dispatch is closed over
// a fixed set of concrete types, never duck-typed: StoreFromConfig builds
// exactly one of the backends below, selected once at startup, and returns
// it wrapped in EnvOverrideStore.
package credential

import (
	"context"
	"fmt"
)

// Item identifies one credential slot: (service, key).
type Item struct {
	Service string
	Key     string
}

// Store is the uniform contract every backend implements. get returns
// (value, found, error) rather than a pointer/error pair so "not present"
// and "backend failure" are never conflated.
type Store interface {
	Get(ctx context.Context, service, key string) (value string, found bool, err error)
	Set(ctx context.Context, service, key, value string) error
	Delete(ctx context.Context, service, key string) (found bool, err error)
	List(ctx context.Context) ([]Item, error)
	Close() error
}

// BackendErrorKind classifies a backend failure so the proxy pipeline can
// map it to the right HTTP status (see internal/proxy/errors.go) without
// inspecting backend-specific error strings.
type BackendErrorKind int

const (
	// KindUnknown is the zero value; never constructed deliberately.
	KindUnknown BackendErrorKind = iota
	// KindTransient covers 5xx/timeouts the caller may retry.
	KindTransient
	// KindPermissionDenied covers 403s, locked keychains, wrong passwords.
	KindPermissionDenied
	// KindNotAvailable covers a missing CLI, unreachable daemon, or other
	// precondition that startup should fail on with a clear diagnostic.
	KindNotAvailable
	// KindUnsupported covers operations a backend deliberately refuses
	// (e.g. systemd-creds Set, which is provisioned out-of-band).
	KindUnsupported
)

func (k BackendErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotAvailable:
		return "not_available"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// BackendError wraps a backend failure with enough context for an operator
// to fix it, modeled on internal/secrets's BackendError but closed over a
// Kind so the pipeline can act on it programmatically.
type BackendError struct {
	Kind    BackendErrorKind
	Backend string
	Service string
	Key     string
	Reason  string
	Fix     string
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Backend, e.Reason)
	if e.Service != "" {
		msg = fmt.Sprintf("%s (%s/%s): %s", e.Backend, e.Service, e.Key, e.Reason)
	}
	if e.Fix != "" {
		msg += "\n\n  " + e.Fix
	}
	return msg
}

// namespace is the prefix applied to keychain service names, which live in
// a keyspace shared with unrelated items. KeePassXC entry titles do not use
// it; they are plain "<service>/<key>".
func namespace(service string) string {
	return "aquaman-" + service
}
