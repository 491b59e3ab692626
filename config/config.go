package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/studyos/aigateway/utils/env"
)

// Config is the application-level configuration, loaded from YAML and then
// overridden by environment variables.
type Config struct {
	// Valkey (open-source version of Redis) endpoint holding the routing
	// configuration documents and the usage log. Empty means in-memory only.
	// E.g., localhost:6379
	ValkeyEndpoint string `yaml:"valkey_endpoint"`

	// API key callers must present in the Authorization header with the
	// Bearer scheme. Empty disables authentication.
	GatewayApiKey string `yaml:"api_key"`

	// Port to listen for incoming requests.
	Port int `yaml:"port"`

	// How long a cached configuration snapshot may be served before the
	// store is consulted again. E.g., 1s
	SnapshotStaleness string `yaml:"snapshot_staleness"`

	// Distinct keys tried per candidate before moving down the chain.
	KeyAttempts int `yaml:"key_attempts"`

	// Upper bound on a single provider call. E.g., 60s
	RequestTimeout string `yaml:"request_timeout"`

	// Consecutive non-rate-limit failures before a model is auto-disabled.
	ModelFailureThreshold int `yaml:"model_failure_threshold"`

	// Base URL for local inference (Ollama). E.g., http://localhost:11434
	OllamaBaseUrl string `yaml:"ollama_base_url"`
}

// Load reads the configuration from path, applying defaults first and
// environment variables last.
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	config := Config{
		ValkeyEndpoint:        "",
		Port:                  8080,
		SnapshotStaleness:     "1s",
		KeyAttempts:           2,
		RequestTimeout:        "60s",
		ModelFailureThreshold: 3,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.Infow("Config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %v", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %v", err)
			}
			logger.Infow("Loaded config file", "path", path)
		}
	}

	// Environment variables precede the values from the YAML file.
	config.ValkeyEndpoint = env.OptionalStringVariable("VALKEY_ENDPOINT", config.ValkeyEndpoint)
	config.GatewayApiKey = env.OptionalStringVariable("GATEWAY_API_KEY", config.GatewayApiKey)
	config.Port = env.OptionalIntVariable("PORT", config.Port)
	config.SnapshotStaleness = env.OptionalStringVariable("SNAPSHOT_STALENESS", config.SnapshotStaleness)
	config.KeyAttempts = env.OptionalIntVariable("KEY_ATTEMPTS", config.KeyAttempts)
	config.RequestTimeout = env.OptionalStringVariable("REQUEST_TIMEOUT", config.RequestTimeout)
	config.ModelFailureThreshold = env.OptionalIntVariable("MODEL_FAILURE_THRESHOLD", config.ModelFailureThreshold)
	config.OllamaBaseUrl = env.OptionalStringVariable("OLLAMA_BASE_URL", config.OllamaBaseUrl)

	return &config, nil
}

// Staleness parses the snapshot staleness window.
func (c *Config) Staleness() (time.Duration, error) {
	return time.ParseDuration(c.SnapshotStaleness)
}

// Timeout parses the per-call request timeout.
func (c *Config) Timeout() (time.Duration, error) {
	return time.ParseDuration(c.RequestTimeout)
}
