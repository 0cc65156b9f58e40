package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tech4242/aquaman/internal/audit"
	"github.com/tech4242/aquaman/internal/config"
	"github.com/tech4242/aquaman/internal/credential"
	"github.com/tech4242/aquaman/internal/cryptoutil"
	"github.com/tech4242/aquaman/internal/log"
	"github.com/tech4242/aquaman/internal/proxy"
	"github.com/tech4242/aquaman/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the credential-injection proxy",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	instanceID := cryptoutil.GenerateID()
	log.SetInstanceID(instanceID)
	defer log.ClearInstanceID()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	stateDir := filepath.Dir(configPath)

	store, err := credential.StoreFromConfig(credential.Config{
		Backend:              credential.Backend(cfg.Credentials.Backend),
		EncryptedFilePath:    cfg.Credentials.EncryptedFilePath,
		KeychainManifestPath: cfg.Credentials.KeychainManifestPath,
		OnePasswordVault:     cfg.Credentials.OnePasswordVault,
		OnePasswordAccount:   cfg.Credentials.OnePasswordAccount,
		VaultAddr:            cfg.Credentials.VaultAddr,
		VaultToken:           cfg.Credentials.VaultToken,
		VaultNamespace:       cfg.Credentials.VaultNamespace,
		VaultMount:           cfg.Credentials.VaultMount,
		KeePassXCDBPath:      cfg.Credentials.KeePassXCDBPath,
		KeePassXCPassword:    cfg.Credentials.KeePassXCPassword,
		SystemdUnit:          cfg.Credentials.SystemdUnit,
	})
	if err != nil {
		return fmt.Errorf("initializing credential backend: %w", err)
	}
	defer store.Close()

	var auditOpts []audit.Option
	if cfg.Audit.RotateBytes > 0 || cfg.Audit.RotateAgeS > 0 {
		bytes := cfg.Audit.RotateBytes
		if bytes == 0 {
			bytes = audit.DefaultRotateBytes
		}
		age := audit.DefaultRotateAge
		if cfg.Audit.RotateAgeS > 0 {
			age = time.Duration(cfg.Audit.RotateAgeS) * time.Second
		}
		auditOpts = append(auditOpts, audit.WithRotateThresholds(bytes, age))
	}
	auditLog, err := audit.NewStore(cfg.Audit.LogDir, auditOpts...)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	var proxyOpts []proxy.Option
	if cfg.Proxy.HostmapToken != "" {
		proxyOpts = append(proxyOpts, proxy.WithHostmapToken(cfg.Proxy.HostmapToken))
	}
	if cfg.Audit.FailClosed {
		proxyOpts = append(proxyOpts, proxy.WithAuditFailClosed(true))
	}

	p, err := proxy.New(registry.New(), cfg.Proxy.AllowedServices, store, auditLog, proxyOpts...)
	if err != nil {
		return fmt.Errorf("building proxy: %w", err)
	}

	srv := proxy.NewServer(p)
	switch {
	case cfg.Proxy.SocketPath != "":
		if err := srv.ListenUnix(cfg.Proxy.SocketPath); err != nil {
			return err
		}
	default:
		var certPtr *tls.Certificate
		if cfg.Proxy.TLS.Enabled {
			certPath := cfg.Proxy.TLS.CertPath
			keyPath := cfg.Proxy.TLS.KeyPath
			if certPath == "" {
				certPath = filepath.Join(stateDir, "tls", "cert.pem")
			}
			if keyPath == "" {
				keyPath = filepath.Join(stateDir, "tls", "key.pem")
			}
			cert, err := proxy.EnsureLocalCert(certPath, keyPath)
			if err != nil {
				return fmt.Errorf("preparing tls certificate: %w", err)
			}
			certPtr = &cert
		}
		if err := srv.ListenTCP(cfg.Proxy.Port, certPtr); err != nil {
			return err
		}
	}

	if err := srv.Serve(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	log.Info("aquaman proxy listening", "subsystem", "proxy", "addr", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down", "subsystem", "proxy")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
