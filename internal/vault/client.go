// Package vault loads runtime secrets (database password, JWT signing key)
// from HashiCorp Vault, with a local fallback when Vault is disabled.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"custody-platform/config"
)

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]string
}

// NewClient creates a new Vault client. With Vault disabled the client only
// serves values previously stored in its local cache, which lets development
// environments run without a Vault server.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]string),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]string),
	}, nil
}

// Enabled reports whether a Vault server is configured.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// GetSecret reads one field from a KV v2 secret. Values are cached per
// (path, field) for the process lifetime; secrets here rotate by restart.
func (c *Client) GetSecret(ctx context.Context, path, field string) (string, error) {
	key := path + "#" + field

	c.mu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return "", fmt.Errorf("secret %s not cached and vault is disabled", key)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret %s not found", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("secret %s has no data payload", path)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("secret %s has no field %s", path, field)
	}

	c.mu.Lock()
	c.cache[key] = value
	c.mu.Unlock()
	return value, nil
}

// StoreSecret writes one field of a KV v2 secret and refreshes the cache.
func (c *Client) StoreSecret(ctx context.Context, path, field, value string) error {
	key := path + "#" + field

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[key] = value
		c.mu.Unlock()
		return nil
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			field: value,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(path), payload); err != nil {
		return fmt.Errorf("failed to store secret %s: %w", path, err)
	}

	c.mu.Lock()
	c.cache[key] = value
	c.mu.Unlock()
	return nil
}

// DatabasePassword returns the database password, preferring Vault over the
// configured fallback.
func (c *Client) DatabasePassword(ctx context.Context, fallback string) string {
	if !c.config.Enabled {
		return fallback
	}
	value, err := c.GetSecret(ctx, "database", "password")
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// JWTSecret returns the JWT signing secret, preferring Vault over the
// configured fallback.
func (c *Client) JWTSecret(ctx context.Context, fallback string) string {
	if !c.config.Enabled {
		return fallback
	}
	value, err := c.GetSecret(ctx, "auth", "jwt_secret")
	if err != nil || value == "" {
		return fallback
	}
	return value
}

func (c *Client) secretPath(path string) string {
	mount := c.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	prefix := c.config.SecretPath
	if prefix == "" {
		prefix = "custody-platform"
	}
	return fmt.Sprintf("%s/data/%s/%s", mount, prefix, path)
}
