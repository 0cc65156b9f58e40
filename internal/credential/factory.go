package credential

import "fmt"

// Backend names a concrete credential backend, matching the `credentials.backend`
// config value verbatim.
type Backend string

const (
	BackendKeychain      Backend = "keychain"
	BackendEncryptedFile Backend = "encrypted-file"
	BackendMemory        Backend = "memory"
	Backend1Password     Backend = "1password"
	BackendVault         Backend = "vault"
	BackendKeePassXC     Backend = "keepassxc"
	BackendSystemdCreds  Backend = "systemd-creds"
)

// Config collects every backend-specific option in one place; only the
// fields relevant to the selected Backend are read. The backend set is
// closed to exactly seven named kinds rather than left open to arbitrary
// registration, so dispatch is a plain switch rather than a registry.
type Config struct {
	Backend Backend

	// encrypted-file
	EncryptedFilePath string

	// keychain
	KeychainManifestPath string

	// 1password
	OnePasswordVault   string
	OnePasswordAccount string

	// vault
	VaultAddr      string
	VaultToken     string
	VaultNamespace string
	VaultMount     string

	// keepassxc
	KeePassXCDBPath   string
	KeePassXCPassword string

	// systemd-creds
	SystemdUnit string
}

// StoreFromConfig builds the one configured Store, wrapped in
// EnvOverrideStore so the AQUAMAN_<SERVICE>_<KEY> escape hatch always
// applies regardless of backend.
func StoreFromConfig(cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case BackendKeychain:
		store, err = NewKeychainStore(cfg.KeychainManifestPath)
	case BackendEncryptedFile:
		store, err = NewEncryptedFileStore(cfg.EncryptedFilePath)
	case BackendMemory:
		store = NewMemoryStore()
	case Backend1Password:
		store = NewOnePasswordStore(cfg.OnePasswordVault, cfg.OnePasswordAccount)
	case BackendVault:
		store, err = NewVaultStore(VaultConfig{
			Addr:      cfg.VaultAddr,
			Token:     cfg.VaultToken,
			Namespace: cfg.VaultNamespace,
			Mount:     cfg.VaultMount,
		})
	case BackendKeePassXC:
		store = NewKeePassXCStore(cfg.KeePassXCDBPath, cfg.KeePassXCPassword)
	case BackendSystemdCreds:
		store = NewSystemdCredsStore(cfg.SystemdUnit)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s backend: %w", cfg.Backend, err)
	}

	return WithEnvOverride(store), nil
}
