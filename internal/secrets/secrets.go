// Package secrets resolves upstream API keys. The environment is the
// default backend; deployments with a 1Password Connect server can pull keys
// from a vault instead so they never land in process environments.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
)

// Resolver returns the secret value for a named key. An empty value with a
// nil error means the key simply is not configured.
type Resolver interface {
	Resolve(name string) (string, error)
}

// Config holds configuration for the secrets backend.
type Config struct {
	// ConnectHost and ConnectToken configure the 1Password Connect API.
	// When either is empty the environment backend is used.
	ConnectHost  string
	ConnectToken string

	// VaultID is the 1Password vault holding the service's keys.
	VaultID string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		ConnectHost:  os.Getenv("OP_CONNECT_HOST"),
		ConnectToken: os.Getenv("OP_CONNECT_TOKEN"),
		VaultID:      os.Getenv("OP_VAULT_ID"),
	}
}

// NewResolver creates a resolver based on configuration: 1Password when
// fully configured, the environment otherwise.
func NewResolver(cfg Config, logger *slog.Logger) Resolver {
	if cfg.ConnectHost != "" && cfg.ConnectToken != "" && cfg.VaultID != "" {
		logger.Info("resolving secrets via 1Password Connect", "vault", cfg.VaultID)
		return &onePasswordResolver{
			client:  connect.NewClientWithUserAgent(cfg.ConnectHost, cfg.ConnectToken, "disaster-intel"),
			vaultID: cfg.VaultID,
			cache:   map[string]string{},
		}
	}
	return envResolver{}
}

// envResolver reads secrets straight from the environment.
type envResolver struct{}

func (envResolver) Resolve(name string) (string, error) {
	return os.Getenv(name), nil
}

// onePasswordResolver reads secrets from a 1Password vault, caching values
// for the process lifetime.
type onePasswordResolver struct {
	client  connect.Client
	vaultID string

	mu    sync.Mutex
	cache map[string]string
}

func (r *onePasswordResolver) Resolve(name string) (string, error) {
	r.mu.Lock()
	if cached, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	item, err := r.client.GetItemByTitle(name, r.vaultID)
	if err != nil {
		// Fall back to the environment so a missing vault item does not
		// take the service down.
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("resolving secret %q: %w", name, err)
	}

	value := item.GetValue("credential")
	if value == "" {
		value = item.GetValue("password")
	}

	r.mu.Lock()
	r.cache[name] = value
	r.mu.Unlock()
	return value, nil
}
