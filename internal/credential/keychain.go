package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeychainStore stores each credential as one entry in the platform's
// native secret service (macOS Keychain, Windows Credential Manager,
// libsecret), service name "aquaman-<service>", account name "<key>".
//
// The OS keychain APIs have no enumeration primitive that works uniformly
// across platforms, so List is served from a manifest file alongside the
// keychain entries (<config_dir>/keychain_manifest.json) rather than a
// genuine keychain query.
type KeychainStore struct {
	manifestPath string

	mu       sync.Mutex
	manifest map[Item]struct{}
}

// NewKeychainStore opens the keychain backend, loading (or creating) its
// sibling manifest file for List support.
func NewKeychainStore(manifestPath string) (*KeychainStore, error) {
	s := &KeychainStore{manifestPath: manifestPath, manifest: make(map[Item]struct{})}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KeychainStore) loadManifest() error {
	data, err := os.ReadFile(s.manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading keychain manifest: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parsing keychain manifest: %w", err)
	}
	for _, it := range items {
		s.manifest[it] = struct{}{}
	}
	return nil
}

// saveManifest must be called with s.mu held.
func (s *KeychainStore) saveManifest() error {
	items := make([]Item, 0, len(s.manifest))
	for it := range s.manifest {
		items = append(items, it)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling keychain manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.manifestPath), 0700); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	if err := os.WriteFile(s.manifestPath, data, 0600); err != nil {
		return fmt.Errorf("writing keychain manifest: %w", err)
	}
	return nil
}

func (s *KeychainStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	value, err := keyring.Get(namespace(service), key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &BackendError{
			Kind:    KindTransient,
			Backend: "OS keychain",
			Service: service,
			Key:     key,
			Reason:  err.Error(),
		}
	}
	return value, true, nil
}

func (s *KeychainStore) Set(ctx context.Context, service, key, value string) error {
	if err := keyring.Set(namespace(service), key, value); err != nil {
		return &BackendError{
			Kind:    KindTransient,
			Backend: "OS keychain",
			Service: service,
			Key:     key,
			Reason:  err.Error(),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest[Item{Service: service, Key: key}] = struct{}{}
	return s.saveManifest()
}

func (s *KeychainStore) Delete(ctx context.Context, service, key string) (bool, error) {
	err := keyring.Delete(namespace(service), key)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &BackendError{
			Kind:    KindTransient,
			Backend: "OS keychain",
			Service: service,
			Key:     key,
			Reason:  err.Error(),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.manifest, Item{Service: service, Key: key})
	return true, s.saveManifest()
}

func (s *KeychainStore) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.manifest))
	for it := range s.manifest {
		out = append(out, it)
	}
	return out, nil
}

func (s *KeychainStore) Close() error {
	return nil
}
