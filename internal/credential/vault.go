package credential

import (
	"context"
	"fmt"
	"net/http"
	"os"

	vaultapi "github.com/hashicorp/vault/api"
)

// VaultStore reads and writes KV v2 secrets in HashiCorp Vault, one secret
// per service at <mount>/data/<service>, with each credential key as a
// field inside that secret. Uses a single shared *vaultapi.Client and its
// Logical() helper for reads/writes, rather than raw HTTP calls.
type VaultStore struct {
	client *vaultapi.Client
	mount  string
}

// VaultConfig configures a VaultStore. Addr/Token/Namespace fall back to
// VAULT_ADDR/VAULT_TOKEN/VAULT_NAMESPACE when empty.
type VaultConfig struct {
	Addr      string
	Token     string
	Namespace string
	Mount     string // KV v2 mount point, default "secret"
}

// NewVaultStore constructs a VaultStore from cfg.
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = os.Getenv("VAULT_ADDR")
	}
	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = os.Getenv("VAULT_NAMESPACE")
	}
	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	vc := vaultapi.DefaultConfig()
	vc.Address = addr
	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(token)
	if namespace != "" {
		client.SetNamespace(namespace)
	}

	return &VaultStore{client: client, mount: mount}, nil
}

func (s *VaultStore) dataPath(service string) string {
	return fmt.Sprintf("%s/data/%s", s.mount, service)
}

func (s *VaultStore) Get(ctx context.Context, service, key string) (string, bool, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(service))
	if err != nil {
		return "", false, classifyVaultError(err, service, key)
	}
	if secret == nil || secret.Data == nil {
		return "", false, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, nil
	}
	raw, ok := data[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("vault: field %q for service %q is not a string", key, service)
	}
	return value, true, nil
}

func (s *VaultStore) Set(ctx context.Context, service, key, value string) error {
	existing := map[string]interface{}{}
	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(service))
	if err == nil && secret != nil && secret.Data != nil {
		if data, ok := secret.Data["data"].(map[string]interface{}); ok {
			existing = data
		}
	}
	existing[key] = value

	_, err = s.client.Logical().WriteWithContext(ctx, s.dataPath(service), map[string]interface{}{
		"data": existing,
	})
	if err != nil {
		return classifyVaultError(err, service, key)
	}
	return nil
}

func (s *VaultStore) Delete(ctx context.Context, service, key string) (bool, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(service))
	if err != nil {
		return false, classifyVaultError(err, service, key)
	}
	if secret == nil || secret.Data == nil {
		return false, nil
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	if _, ok := data[key]; !ok {
		return false, nil
	}
	delete(data, key)

	_, err = s.client.Logical().WriteWithContext(ctx, s.dataPath(service), map[string]interface{}{
		"data": data,
	})
	if err != nil {
		return false, classifyVaultError(err, service, key)
	}
	return true, nil
}

func (s *VaultStore) List(ctx context.Context) ([]Item, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, fmt.Sprintf("%s/metadata", s.mount))
	if err != nil {
		return nil, classifyVaultError(err, "", "")
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	keysRaw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	var out []Item
	for _, k := range keysRaw {
		service, ok := k.(string)
		if !ok {
			continue
		}
		secret, err := s.client.Logical().ReadWithContext(ctx, s.dataPath(service))
		if err != nil || secret == nil || secret.Data == nil {
			continue
		}
		data, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			continue
		}
		for key := range data {
			out = append(out, Item{Service: service, Key: key})
		}
	}
	return out, nil
}

func (s *VaultStore) Close() error {
	return nil
}

func classifyVaultError(err error, service, key string) error {
	if respErr, ok := err.(*vaultapi.ResponseError); ok {
		switch {
		case respErr.StatusCode == http.StatusForbidden:
			return &BackendError{
				Kind:    KindPermissionDenied,
				Backend: "HashiCorp Vault",
				Service: service,
				Key:     key,
				Reason:  "permission denied",
			}
		case respErr.StatusCode >= 500:
			return &BackendError{
				Kind:    KindTransient,
				Backend: "HashiCorp Vault",
				Service: service,
				Key:     key,
				Reason:  fmt.Sprintf("upstream returned %d", respErr.StatusCode),
			}
		}
	}
	return &BackendError{
		Kind:    KindTransient,
		Backend: "HashiCorp Vault",
		Service: service,
		Key:     key,
		Reason:  err.Error(),
	}
}
