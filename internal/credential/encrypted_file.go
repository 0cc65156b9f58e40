package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/term"

	"github.com/tech4242/aquaman/internal/cryptoutil"
)

const masterPasswordEnvVar = "AQUAMAN_MASTER_PASSWORD"

// EncryptedFileStore persists all credentials in a single AES-256-GCM
// encrypted JSON blob at <config_dir>/credentials.enc. The whole file is
// decrypted into memory on first use and re-encrypted on every mutation;
// this is acceptable because the credential set is small (tens of items),
// not a high-throughput database.
type EncryptedFileStore struct {
	path     string
	password string

	mu   sync.Mutex
	data map[string]map[string]string // service -> key -> value
}

// NewEncryptedFileStore opens (or initializes) the encrypted file at path,
// resolving the master password from AQUAMAN_MASTER_PASSWORD or, if unset,
// an interactive terminal prompt. The password is never persisted.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	password := os.Getenv(masterPasswordEnvVar)
	if password == "" {
		prompted, err := promptMasterPassword()
		if err != nil {
			return nil, fmt.Errorf("resolving master password: %w", err)
		}
		password = prompted
	}
	return newEncryptedFileStoreWithPassword(path, password)
}

// newEncryptedFileStoreWithPassword bypasses prompting, for tests and for
// callers that already hold a validated password. A password is only
// strength-checked the first time a vault is created at path — an
// existing vault's password is whatever it was set to originally.
func newEncryptedFileStoreWithPassword(path, password string) (*EncryptedFileStore, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cryptoutil.ValidatePasswordStrength(password); err != nil {
			return nil, fmt.Errorf("master password too weak: %w", err)
		}
	}

	s := &EncryptedFileStore{path: path, password: password}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func promptMasterPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s not set and stdin is not a terminal", masterPasswordEnvVar)
	}
	fmt.Fprint(os.Stderr, "Aquaman master password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// load decrypts the file into memory, or seeds an empty store if the file
// does not yet exist.
func (s *EncryptedFileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.data = make(map[string]map[string]string)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading credentials file: %w", err)
	}

	plaintext, err := cryptoutil.DecryptWithPassword(string(blob), s.password)
	if err != nil {
		return fmt.Errorf("decrypting credentials file: %w", err)
	}

	var data map[string]map[string]string
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return fmt.Errorf("parsing decrypted credentials: %w", err)
	}
	s.data = data
	return nil
}

// save must be called with s.mu held.
func (s *EncryptedFileStore) save() error {
	plaintext, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	blob, err := cryptoutil.EncryptWithPassword(plaintext, s.password)
	if err != nil {
		return fmt.Errorf("encrypting credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(blob), 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

func (s *EncryptedFileStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	services, ok := s.data[service]
	if !ok {
		return "", false, nil
	}
	v, ok := services[key]
	return v, ok, nil
}

func (s *EncryptedFileStore) Set(ctx context.Context, service, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[service] == nil {
		s.data[service] = make(map[string]string)
	}
	s.data[service][key] = value
	return s.save()
}

func (s *EncryptedFileStore) Delete(ctx context.Context, service, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	services, ok := s.data[service]
	if !ok {
		return false, nil
	}
	if _, ok := services[key]; !ok {
		return false, nil
	}
	delete(services, key)
	if len(services) == 0 {
		delete(s.data, service)
	}
	return true, s.save()
}

func (s *EncryptedFileStore) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for service, keys := range s.data {
		for key := range keys {
			out = append(out, Item{Service: service, Key: key})
		}
	}
	return out, nil
}

func (s *EncryptedFileStore) Close() error {
	return nil
}
