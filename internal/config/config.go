package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment selects production hardening behavior.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the resolved runtime configuration of the server.
type Config struct {
	Env         string
	FrontendURL string
	DevMobile   string

	DatabaseURL string
	RedisURL    string

	IdentityProviderURL string
	IdentityProviderKey string

	ORSAPIKey        string
	HEREAPIKey       string
	GoogleMapsAPIKey string
	OpenAIAPIKey     string
	GeminiAPIKey     string
	NASAFirmsAPIKey  string

	AdminUserIDs map[string]bool

	// Per-feed TTL overrides from the optional YAML file.
	FeedTTLs map[string]time.Duration
}

// fileConfig is the optional YAML overlay. Only feed TTLs are file-driven;
// everything secret stays in the environment.
type fileConfig struct {
	Feeds map[string]string `yaml:"feeds"`
}

// Load resolves configuration from the environment (a .env file is loaded if
// present) and an optional YAML file path.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("FLASK_ENV", EnvDevelopment),
		FrontendURL:         os.Getenv("FRONTEND_URL"),
		DevMobile:           os.Getenv("DEV_MOBILE_URL"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		IdentityProviderURL: os.Getenv("IDENTITY_PROVIDER_URL"),
		IdentityProviderKey: os.Getenv("IDENTITY_PROVIDER_KEY"),
		ORSAPIKey:           os.Getenv("ORS_API_KEY"),
		HEREAPIKey:          os.Getenv("HERE_API_KEY"),
		GoogleMapsAPIKey:    os.Getenv("GOOGLE_MAPS_API_KEY"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		NASAFirmsAPIKey:     os.Getenv("NASA_FIRMS_API_KEY"),
		AdminUserIDs:        map[string]bool{},
		FeedTTLs:            map[string]time.Duration{},
	}

	for _, id := range strings.Split(os.Getenv("ADMIN_USER_IDS"), ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			cfg.AdminUserIDs[id] = true
		}
	}

	if cfg.Env == EnvProduction && cfg.FrontendURL == "" {
		return nil, fmt.Errorf("FRONTEND_URL must be set in production")
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	for feed, ttl := range fc.Feeds {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("feed %q: invalid ttl %q: %w", feed, ttl, err)
		}
		c.FeedTTLs[feed] = d
	}
	return nil
}

// IsAdmin reports whether the user ID belongs to the admin allowlist.
func (c *Config) IsAdmin(userID string) bool {
	return c.AdminUserIDs[userID]
}

// AllowedOrigins returns the CORS allowlist for the current environment.
func (c *Config) AllowedOrigins() []string {
	if c.Env == EnvProduction {
		return []string{c.FrontendURL}
	}
	origins := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://localhost:3001",
		"http://127.0.0.1:3001",
	}
	if c.DevMobile != "" {
		origins = append(origins, c.DevMobile)
	}
	return origins
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
