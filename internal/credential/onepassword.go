package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// OnePasswordStore shells out to the `op` CLI. Vault and optional account
// are fixed at construction; invocations are serialized with an internal
// mutex because concurrent `op` invocations under the same session can
// race on its local cache.
type OnePasswordStore struct {
	vault   string
	account string

	mu sync.Mutex
}

// NewOnePasswordStore returns a Store backed by the `op` CLI against vault.
// account may be empty to use op's default signed-in account.
func NewOnePasswordStore(vault, account string) *OnePasswordStore {
	return &OnePasswordStore{vault: vault, account: account}
}

func (s *OnePasswordStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := exec.LookPath("op"); err != nil {
		return "", false, &BackendError{
			Kind:    KindNotAvailable,
			Backend: "1Password",
			Service: service,
			Key:     key,
			Reason:  "op CLI not found in PATH",
			Fix:     "Install from https://1password.com/downloads/command-line/, then run: op signin",
		}
	}

	ref := fmt.Sprintf("op://%s/%s/%s", s.vault, service, key)
	args := []string{"read", ref}
	if s.account != "" {
		args = append(args, "--account", s.account)
	}

	cmd := exec.CommandContext(ctx, "op", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isOpNotFound(stderr.String()) {
			return "", false, nil
		}
		return "", false, s.classifyError(stderr.String(), service, key)
	}
	return strings.TrimSpace(stdout.String()), true, nil
}

func (s *OnePasswordStore) Set(ctx context.Context, service, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := exec.LookPath("op"); err != nil {
		return &BackendError{
			Kind:    KindNotAvailable,
			Backend: "1Password",
			Service: service,
			Key:     key,
			Reason:  "op CLI not found in PATH",
		}
	}

	args := []string{"item", "edit", service, fmt.Sprintf("%s=%s", key, value), "--vault", s.vault}
	if s.account != "" {
		args = append(args, "--account", s.account)
	}
	cmd := exec.CommandContext(ctx, "op", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return s.classifyError(stderr.String(), service, key)
	}
	return nil
}

func (s *OnePasswordStore) Delete(ctx context.Context, service, key string) (bool, error) {
	// 1Password items hold multiple fields; deleting a single field is not
	// exposed by `op item edit` in a uniform way across CLI versions, so
	// this backend supports only whole-item deletion.
	s.mu.Lock()
	defer s.mu.Unlock()

	args := []string{"item", "delete", service, "--vault", s.vault}
	if s.account != "" {
		args = append(args, "--account", s.account)
	}
	cmd := exec.CommandContext(ctx, "op", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if isOpNotFound(stderr.String()) {
			return false, nil
		}
		return false, s.classifyError(stderr.String(), service, key)
	}
	return true, nil
}

func (s *OnePasswordStore) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := []string{"item", "list", "--vault", s.vault, "--format", "json"}
	if s.account != "" {
		args = append(args, "--account", s.account)
	}
	cmd := exec.CommandContext(ctx, "op", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, s.classifyError(stderr.String(), "", "")
	}

	var items []struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &items); err != nil {
		return nil, fmt.Errorf("parsing op item list output: %w", err)
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{Service: it.Title})
	}
	return out, nil
}

func (s *OnePasswordStore) Close() error {
	return nil
}

func isOpNotFound(stderr string) bool {
	return strings.Contains(stderr, "isn't an item") || strings.Contains(stderr, "could not be found")
}

func (s *OnePasswordStore) classifyError(stderr, service, key string) error {
	switch {
	case strings.Contains(stderr, "not currently signed in"), strings.Contains(stderr, "not signed in"):
		return &BackendError{
			Kind:    KindNotAvailable,
			Backend: "1Password",
			Service: service,
			Key:     key,
			Reason:  "not signed in",
			Fix:     "Run: eval $(op signin)\n\nOr for CI/automation, set OP_SERVICE_ACCOUNT_TOKEN.",
		}
	case strings.Contains(stderr, "isn't a vault"):
		return &BackendError{
			Kind:    KindPermissionDenied,
			Backend: "1Password",
			Service: service,
			Key:     key,
			Reason:  "vault not found or not accessible",
			Fix:     fmt.Sprintf("List available vaults with: op vault list (looked for %q)", s.vault),
		}
	default:
		return &BackendError{
			Kind:    KindTransient,
			Backend: "1Password",
			Service: service,
			Key:     key,
			Reason:  strings.TrimSpace(stderr),
		}
	}
}
