// Package config handles the gitcred global configuration file,
// ~/.gitcred/config.yaml, with GITCRED_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// GlobalConfig holds settings read from ~/.gitcred/config.yaml.
type GlobalConfig struct {
	// ClientID overrides the built-in Azure application client id.
	ClientID string `yaml:"client_id"`
	// Resource overrides the Azure resource access is requested for.
	Resource string `yaml:"resource"`
	// UserAgent identifies this client on every outbound request.
	UserAgent string `yaml:"user_agent"`
	// Scope is the permission scope requested for generated tokens.
	Scope string `yaml:"scope"`

	Store StoreConfig `yaml:"store"`
	Debug DebugConfig `yaml:"debug"`
}

// StoreConfig selects the secret-store backend.
type StoreConfig struct {
	// Backend is "keyring", "file", or "memory" (tests only).
	Backend string `yaml:"backend"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// DefaultGlobalConfig returns the default global configuration.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		UserAgent: "gitcred",
		Scope:     "vso.profile",
		Store:     StoreConfig{Backend: "keyring"},
		Debug:     DebugConfig{RetentionDays: 7},
	}
}

// LoadGlobal reads ~/.gitcred/config.yaml and applies environment overrides.
func LoadGlobal() (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".gitcred", "config.yaml")
		if data, err := os.ReadFile(configPath); err == nil {
			_ = yaml.Unmarshal(data, cfg) // Ignore unmarshal errors, use defaults
		}
	}

	if v := os.Getenv("GITCRED_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("GITCRED_RESOURCE"); v != "" {
		cfg.Resource = v
	}
	if v := os.Getenv("GITCRED_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("GITCRED_SCOPE"); v != "" {
		cfg.Scope = v
	}
	if v := os.Getenv("GITCRED_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("GITCRED_LOG_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Debug.RetentionDays = days
		}
	}

	return cfg, nil
}

// GlobalConfigDir returns the path to ~/.gitcred.
func GlobalConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".gitcred")
	}
	return filepath.Join(homeDir, ".gitcred")
}
