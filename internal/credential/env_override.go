package credential

import (
	"context"
	"os"
	"regexp"
	"strings"
)

var envNameSanitizer = regexp.MustCompile(`[^A-Z0-9]`)

// envVarName computes AQUAMAN_<SERVICE>_<KEY>, uppercased with every
// non-alphanumeric character mapped to underscore.
func envVarName(service, key string) string {
	raw := strings.ToUpper(service + "_" + key)
	return "AQUAMAN_" + envNameSanitizer.ReplaceAllString(raw, "_")
}

// EnvOverrideStore wraps another Store and short-circuits Get with an
// AQUAMAN_<SERVICE>_<KEY> environment variable when set, checked strictly
// before the wrapped backend's Get — never in parallel with it, per the
// ordering rule call out against "optimizing" this into a race. Set/Delete/
// List/Close pass straight through to the wrapped store; the env override
// is a read-only escape hatch for testing and break-glass access.
type EnvOverrideStore struct {
	inner Store
}

// WithEnvOverride wraps inner with the AQUAMAN_<SERVICE>_<KEY> override.
func WithEnvOverride(inner Store) *EnvOverrideStore {
	return &EnvOverrideStore{inner: inner}
}

func (s *EnvOverrideStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	if v, ok := os.LookupEnv(envVarName(service, key)); ok {
		return v, true, nil
	}
	return s.inner.Get(ctx, service, key)
}

func (s *EnvOverrideStore) Set(ctx context.Context, service, key, value string) error {
	return s.inner.Set(ctx, service, key, value)
}

func (s *EnvOverrideStore) Delete(ctx context.Context, service, key string) (bool, error) {
	return s.inner.Delete(ctx, service, key)
}

func (s *EnvOverrideStore) List(ctx context.Context) ([]Item, error) {
	return s.inner.List(ctx)
}

func (s *EnvOverrideStore) Close() error {
	return s.inner.Close()
}
