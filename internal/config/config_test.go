package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aquaman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
proxy:
  port: 8787
  tls:
    enabled: false
  allowed_services: [anthropic, openai]
credentials:
  backend: memory
audit:
  log_dir: /tmp/aquaman-audit
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Proxy.Port)
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.Proxy.AllowedServices)
	assert.Equal(t, "memory", cfg.Credentials.Backend)
	assert.Equal(t, "/tmp/aquaman-audit", cfg.Audit.LogDir)
}

func TestValidate_RejectsSocketAndPortTogether(t *testing.T) {
	cfg := Config{
		Proxy: ProxyConfig{
			SocketPath:      "/tmp/aquaman.sock",
			Port:            8787,
			AllowedServices: []string{"anthropic"},
		},
		Credentials: CredentialsConfig{Backend: "memory"},
		Audit:       AuditConfig{LogDir: "/tmp/a"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNeitherSocketNorPort(t *testing.T) {
	cfg := Config{
		Proxy:       ProxyConfig{AllowedServices: []string{"anthropic"}},
		Credentials: CredentialsConfig{Backend: "memory"},
		Audit:       AuditConfig{LogDir: "/tmp/a"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEmptyAllowlist(t *testing.T) {
	cfg := Config{
		Proxy:       ProxyConfig{Port: 8787},
		Credentials: CredentialsConfig{Backend: "memory"},
		Audit:       AuditConfig{LogDir: "/tmp/a"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsTLSOnUnixSocket(t *testing.T) {
	cfg := Config{
		Proxy: ProxyConfig{
			SocketPath:      "/tmp/aquaman.sock",
			TLS:             TLSConfig{Enabled: true},
			AllowedServices: []string{"anthropic"},
		},
		Credentials: CredentialsConfig{Backend: "memory"},
		Audit:       AuditConfig{LogDir: "/tmp/a"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingBackend(t *testing.T) {
	cfg := Config{
		Proxy:       ProxyConfig{Port: 8787, AllowedServices: []string{"anthropic"}},
		Credentials: CredentialsConfig{},
		Audit:       AuditConfig{LogDir: "/tmp/a"},
	}
	assert.Error(t, cfg.Validate())
}
