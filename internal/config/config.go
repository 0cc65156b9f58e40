// Package config handles aquaman.yaml manifest parsing: the proxy listener,
// credential backend, and audit log settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level aquaman.yaml document.
type Config struct {
	Proxy       ProxyConfig       `yaml:"proxy"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Audit       AuditConfig       `yaml:"audit"`
}

// TLSConfig configures TLS on a TCP listener.
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled,omitempty"`
	CertPath     string `yaml:"cert_path,omitempty"`
	KeyPath      string `yaml:"key_path,omitempty"`
	AutoGenerate bool   `yaml:"auto_generate,omitempty"`
}

// ProxyConfig configures the listener and routing policy.
type ProxyConfig struct {
	SocketPath      string    `yaml:"socket_path,omitempty"`
	Port            int       `yaml:"port,omitempty"`
	TLS             TLSConfig `yaml:"tls,omitempty"`
	AllowedServices []string  `yaml:"allowed_services"`
	HostmapToken    string    `yaml:"hostmap_token,omitempty"`
}

// CredentialsConfig selects and configures the credential backend.
type CredentialsConfig struct {
	Backend string `yaml:"backend"`

	EncryptedFilePath string `yaml:"encrypted_file_path,omitempty"`

	KeychainManifestPath string `yaml:"keychain_manifest_path,omitempty"`

	OnePasswordVault   string `yaml:"onepassword_vault,omitempty"`
	OnePasswordAccount string `yaml:"onepassword_account,omitempty"`

	VaultAddr      string `yaml:"vault_addr,omitempty"`
	VaultToken     string `yaml:"vault_token,omitempty"`
	VaultNamespace string `yaml:"vault_namespace,omitempty"`
	VaultMount     string `yaml:"vault_mount,omitempty"`

	KeePassXCDBPath   string `yaml:"keepassxc_db_path,omitempty"`
	KeePassXCPassword string `yaml:"keepassxc_password,omitempty"`

	SystemdUnit string `yaml:"systemd_unit,omitempty"`
}

// AuditConfig configures the hash-chained audit log.
type AuditConfig struct {
	LogDir      string `yaml:"log_dir"`
	RotateBytes int64  `yaml:"rotate_bytes,omitempty"`
	RotateAgeS  int64  `yaml:"rotate_age_s,omitempty"`
	// FailClosed, when true, turns an audit write failure into a failed
	// request instead of a logged-and-served one. Defaults to false
	// (fail-open): a missing or unwritable audit log degrades the proxy
	// to running without a tamper-evident trail rather than refusing
	// all traffic.
	FailClosed bool `yaml:"fail_closed,omitempty"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the structural invariants a usable config must satisfy:
// exactly one listening mode, a non-empty allowlist, no TLS on a unix
// socket, a non-empty backend name and a non-empty audit log_dir. Whether
// the backend name is a known one is not checked here.
func (c *Config) Validate() error {
	if err := c.Proxy.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Credentials.Backend) == "" {
		return fmt.Errorf("credentials.backend is required")
	}
	if strings.TrimSpace(c.Audit.LogDir) == "" {
		return fmt.Errorf("audit.log_dir is required")
	}
	return nil
}

func (p *ProxyConfig) validate() error {
	hasSocket := strings.TrimSpace(p.SocketPath) != ""
	hasPort := p.Port != 0
	if hasSocket == hasPort {
		return fmt.Errorf("proxy: exactly one of socket_path or port must be set")
	}
	if len(p.AllowedServices) == 0 {
		return fmt.Errorf("proxy: allowed_services must be non-empty")
	}
	if p.TLS.Enabled && hasSocket {
		return fmt.Errorf("proxy: tls is not applicable to a unix socket listener")
	}
	return nil
}
