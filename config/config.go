// Package config loads the agent configuration.
//
// Values come from an optional YAML file and are then overridden by
// environment variables:
//
//	AGENT_LISTEN, AGENT_AUTH_PATH, AGENT_HEADER_NAME, AGENT_DOCS_ENABLED,
//	AGENT_DOCS_PATH, AGENT_TOKEN_SECRET, AGENT_ORIGIN, AGENT_ADDRESS,
//	AGENT_ETH_RPC_URL, AGENT_IPFS_API_URL, AGENT_LOG_LEVEL, REDIS_URL
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/layer-3/agent/logging"
	"github.com/layer-3/agent/rpc"
	"gopkg.in/yaml.v3"
)

// Fixed protocol durations
const (
	SessionTTL      = 24 * time.Hour
	NonceWindow     = 10 * time.Minute
	NonceGCInterval = time.Hour
)

// ErrMissingSecret is returned when no token secret is configured
var ErrMissingSecret = errors.New("token secret is required")

// Config is the agent configuration
type Config struct {
	Listen string `yaml:"listen"`

	// AuthPath is where wallets post signed challenges
	AuthPath string `yaml:"auth_path"`
	// HeaderName carries the bearer token
	HeaderName string `yaml:"header_name"`

	DocsEnabled bool   `yaml:"docs_enabled"`
	DocsPath    string `yaml:"docs_path"`
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`

	// TokenSecret signs session tokens. Changing it ends every session.
	TokenSecret string `yaml:"token_secret"`

	// Origin challenges must be signed for. Empty means the request Origin header.
	Origin string `yaml:"origin"`

	// AgentAddress receives payments for paid methods
	AgentAddress string `yaml:"agent_address"`

	CORSOrigins []string `yaml:"cors_origins"`

	EthRPCURL  string `yaml:"eth_rpc_url"`
	RedisURL   string `yaml:"redis_url"`
	IPFSAPIURL string `yaml:"ipfs_api_url"`

	Log logging.Config `yaml:"log"`
}

// Default returns the configuration used for keys that are not set
func Default() Config {
	return Config{
		Listen:      ":8080",
		AuthPath:    "/auth",
		HeaderName:  "Authorization",
		DocsEnabled: true,
		DocsPath:    "/docs",
		Title:       "Agent API",
		Version:     "1.0.0",
		CORSOrigins: []string{"*"},
		Log:         logging.Config{Level: "info", Format: "json"},
	}
}

// Load reads path, when given, on top of the defaults, applies environment
// overrides and validates the result
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		if err := decodeStrict(f, &cfg); err != nil {
			return nil, err
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeStrict(r io.Reader, out *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	for key, dst := range map[string]*string{
		"AGENT_LISTEN":       &c.Listen,
		"AGENT_AUTH_PATH":    &c.AuthPath,
		"AGENT_HEADER_NAME":  &c.HeaderName,
		"AGENT_DOCS_PATH":    &c.DocsPath,
		"AGENT_TOKEN_SECRET": &c.TokenSecret,
		"AGENT_ORIGIN":       &c.Origin,
		"AGENT_ADDRESS":      &c.AgentAddress,
		"AGENT_ETH_RPC_URL":  &c.EthRPCURL,
		"AGENT_IPFS_API_URL": &c.IPFSAPIURL,
		"AGENT_LOG_LEVEL":    &c.Log.Level,
		"REDIS_URL":          &c.RedisURL,
	} {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("AGENT_DOCS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_DOCS_ENABLED %q: %w", v, err)
		}
		c.DocsEnabled = enabled
	}
	return nil
}

// Validate checks required values and canonicalizes paths
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return ErrMissingSecret
	}
	if c.HeaderName == "" {
		return errors.New("header name is required")
	}

	authPath, err := rpc.NormalizeName(c.AuthPath)
	if err != nil {
		return fmt.Errorf("auth path: %w", err)
	}
	c.AuthPath = authPath

	if c.DocsEnabled {
		docsPath, err := rpc.NormalizeName(c.DocsPath)
		if err != nil {
			return fmt.Errorf("docs path: %w", err)
		}
		if docsPath == authPath {
			return fmt.Errorf("docs path and auth path are both %s", docsPath)
		}
		c.DocsPath = docsPath
	}
	return nil
}
