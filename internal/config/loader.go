package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

// Environment variables recognized by the loader.
const (
	EnvConfigPath = "DSHIELD_MCP_CONFIG"
	EnvTCPMode    = "DSHIELD_MCP_TCP_MODE"
	EnvTUIMode    = "DSHIELD_TUI_MODE"
)

var validate = validator.New()

// Load reads, resolves and validates the configuration. The path argument
// wins over DSHIELD_MCP_CONFIG; when both are empty the default locations
// are probed. A missing file yields defaults-only configuration for every
// section except elasticsearch, which is required.
func Load(path string) (*Config, error) {
	// .env is optional; ignore absence.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = probeDefaultPaths()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, dserrors.Configf("read %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, dserrors.Configf("parse %s: %v", path, err)
		}
		log.Info().Str("path", path).Msg("Configuration loaded")
	} else {
		log.Warn().Msg("No configuration file found, using defaults and environment")
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := resolveSecrets(&cfg); err != nil {
		return nil, err
	}

	if cfg.Elasticsearch.URL == "" {
		return nil, dserrors.Configf("elasticsearch.url is required")
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, dserrors.Configf("invalid configuration: %v", err)
	}
	return &cfg, nil
}

func probeDefaultPaths() string {
	candidates := []string{"mcp_config.yaml", "config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "dshield-mcp", "config.yaml"))
	}
	candidates = append(candidates, "/etc/dshield-mcp/config.yaml")
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ELASTICSEARCH_URL"); v != "" {
		cfg.Elasticsearch.URL = v
	}
	if v := os.Getenv("ELASTICSEARCH_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("DSHIELD_MCP_DATA_DIR"); v != "" {
		cfg.Performance.DataDir = v
	}
	if truthyEnv(EnvTCPMode) {
		cfg.TCPTransport.Enabled = true
	}
}

func truthyEnv(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "dshield-mcp")
	}
	return filepath.Join(os.TempDir(), "dshield-mcp")
}

// String implements a redacted representation for startup logging.
func (c *ElasticsearchConfig) String() string {
	return fmt.Sprintf("url=%s user=%s tls_verify=%v", c.URL, c.Username, c.VerifyTLS == nil || *c.VerifyTLS)
}
