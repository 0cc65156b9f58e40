package credential

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// KeePassXCStore shells out to keepassxc-cli against a single .kdbx
// database, one entry per credential titled "<service>/<key>".
// Invocations are serialized because keepassxc-cli prompts for the
// database password on stdin and concurrent prompts would interleave.
type KeePassXCStore struct {
	dbPath   string
	password string

	mu sync.Mutex
}

// NewKeePassXCStore returns a Store backed by keepassxc-cli against the
// database at dbPath, unlocked with password.
func NewKeePassXCStore(dbPath, password string) *KeePassXCStore {
	return &KeePassXCStore{dbPath: dbPath, password: password}
}

func (s *KeePassXCStore) entryTitle(service, key string) string {
	return fmt.Sprintf("%s/%s", service, key)
}

func (s *KeePassXCStore) run(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "keepassxc-cli", args...)
	cmd.Stdin = strings.NewReader(s.password + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (s *KeePassXCStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := exec.LookPath("keepassxc-cli"); err != nil {
		return "", false, &BackendError{
			Kind:    KindNotAvailable,
			Backend: "KeePassXC",
			Service: service,
			Key:     key,
			Reason:  "keepassxc-cli not found in PATH",
			Fix:     "Install KeePassXC and ensure keepassxc-cli is on PATH.",
		}
	}

	stdout, stderr, err := s.run(ctx, "show", s.dbPath, s.entryTitle(service, key), "-s", "-a", "Password")
	if err != nil {
		if strings.Contains(stderr, "Could not find entry") {
			return "", false, nil
		}
		return "", false, &BackendError{Kind: KindTransient, Backend: "KeePassXC", Service: service, Key: key, Reason: strings.TrimSpace(stderr)}
	}
	return strings.TrimSpace(stdout), true, nil
}

func (s *KeePassXCStore) Set(ctx context.Context, service, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := s.entryTitle(service, key)
	_, stderr, err := s.run(ctx, "edit", s.dbPath, title, "-p")
	if err != nil {
		// Entry doesn't exist yet; create it.
		_, stderr, err = s.run(ctx, "add", s.dbPath, title, "-p")
		if err != nil {
			return &BackendError{Kind: KindTransient, Backend: "KeePassXC", Service: service, Key: key, Reason: strings.TrimSpace(stderr)}
		}
	}
	return nil
}

func (s *KeePassXCStore) Delete(ctx context.Context, service, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, stderr, err := s.run(ctx, "rm", s.dbPath, s.entryTitle(service, key))
	if err != nil {
		if strings.Contains(stderr, "Could not find entry") {
			return false, nil
		}
		return false, &BackendError{Kind: KindTransient, Backend: "KeePassXC", Service: service, Key: key, Reason: strings.TrimSpace(stderr)}
	}
	return true, nil
}

func (s *KeePassXCStore) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stdout, stderr, err := s.run(ctx, "ls", "-R", s.dbPath)
	if err != nil {
		return nil, &BackendError{Kind: KindTransient, Backend: "KeePassXC", Reason: strings.TrimSpace(stderr)}
	}

	var out []Item
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		service, key, ok := strings.Cut(line, "/")
		if !ok {
			continue
		}
		out = append(out, Item{Service: service, Key: key})
	}
	return out, nil
}

func (s *KeePassXCStore) Close() error {
	return nil
}
