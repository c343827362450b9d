package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/config"
)

// VaultManager reads credentials from a Vault KV v2 mount.
type VaultManager struct {
	client *vault.Client
	mount  string
	logger *zap.Logger
}

// NewVaultManager returns a disabled manager when Vault is off in cfg.
func NewVaultManager(cfg *config.Config, baseLogger *zap.Logger) (*VaultManager, error) {
	log := baseLogger.Named("vault-manager")
	if !cfg.VaultEnabled {
		log.Debug("Vault secret manager is disabled via configuration")
		return &VaultManager{logger: log}, nil
	}

	log.Info("Initializing Vault secret manager",
		zap.String("address", cfg.VaultAddr),
		zap.String("mount", cfg.VaultMountPath))

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.VaultAddr
	vConfig.Timeout = 10 * time.Second
	if err := vConfig.ConfigureTLS(&vault.TLSConfig{
		CACert:   cfg.VaultCACert,
		Insecure: cfg.VaultSkipVerify,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure Vault TLS: %w", err)
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.VaultToken != "" {
		client.SetToken(cfg.VaultToken)
	} else {
		log.Warn("Vault is enabled but VAULT_TOKEN is empty; requests will be unauthenticated")
	}

	mount := cfg.VaultMountPath
	if mount == "" {
		mount = "secret"
	}
	return &VaultManager{client: client, mount: mount, logger: log}, nil
}

func (m *VaultManager) IsEnabled() bool {
	return m != nil && m.client != nil
}

func (m *VaultManager) GetCredentials(ctx context.Context, path, usernameKey, passwordKey string) (*Credentials, error) {
	if !m.IsEnabled() {
		return nil, errors.New("vault manager is not enabled")
	}
	if path == "" {
		return nil, errors.New("vault secret path cannot be empty")
	}
	if usernameKey == "" {
		usernameKey = "username"
	}
	if passwordKey == "" {
		passwordKey = "password"
	}

	log := m.logger.With(zap.String("vault_path", path))
	log.Debug("Reading secret from Vault KV v2")

	secret, err := m.client.KVv2(m.mount).Get(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("secret '%s' not found in Vault mount '%s': %w", path, m.mount, err)
		}
		return nil, fmt.Errorf("failed to read secret '%s' from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret data for '%s' is empty", path)
	}

	password, _ := secret.Data[passwordKey].(string)
	if password == "" {
		return nil, fmt.Errorf("password key '%s' is missing or not a non-empty string in secret '%s'", passwordKey, path)
	}
	username, _ := secret.Data[usernameKey].(string)

	log.Debug("Retrieved credentials from Vault")
	return &Credentials{Username: username, Password: password}, nil
}
