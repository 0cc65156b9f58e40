package credential

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SystemdCredsStore reads credentials provisioned out-of-band by systemd's
// LoadCredential= mechanism at /run/credentials/<unit>/<service>.<key>.
// Set is unsupported: these credentials are provisioned by the unit file,
// not by this process.
type SystemdCredsStore struct {
	unit string
	root string // override of /run/credentials for tests
}

// NewSystemdCredsStore returns a read-only Store for the given systemd unit
// name.
func NewSystemdCredsStore(unit string) *SystemdCredsStore {
	return &SystemdCredsStore{unit: unit, root: "/run/credentials"}
}

func (s *SystemdCredsStore) path(service, key string) string {
	return filepath.Join(s.root, s.unit, fmt.Sprintf("%s.%s", service, key))
}

func (s *SystemdCredsStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(service, key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &BackendError{
			Kind:    KindTransient,
			Backend: "systemd-creds",
			Service: service,
			Key:     key,
			Reason:  err.Error(),
		}
	}
	return strings.TrimRight(string(data), "\n"), true, nil
}

func (s *SystemdCredsStore) Set(ctx context.Context, service, key, value string) error {
	return &BackendError{
		Kind:    KindUnsupported,
		Backend: "systemd-creds",
		Service: service,
		Key:     key,
		Reason:  "credentials are provisioned out-of-band via LoadCredential=, not writable at runtime",
	}
}

func (s *SystemdCredsStore) Delete(ctx context.Context, service, key string) (bool, error) {
	return false, &BackendError{
		Kind:    KindUnsupported,
		Backend: "systemd-creds",
		Service: service,
		Key:     key,
		Reason:  "credentials are provisioned out-of-band via LoadCredential=, not deletable at runtime",
	}
}

func (s *SystemdCredsStore) List(ctx context.Context) ([]Item, error) {
	dir := filepath.Join(s.root, s.unit)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing systemd credentials: %w", err)
	}

	var out []Item
	for _, e := range entries {
		service, key, ok := strings.Cut(e.Name(), ".")
		if !ok {
			continue
		}
		out = append(out, Item{Service: service, Key: key})
	}
	return out, nil
}

func (s *SystemdCredsStore) Close() error {
	return nil
}
