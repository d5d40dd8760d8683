package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultProxyAddr is where the proxy listens unless ORCHO_PROXY_ADDR is set.
const DefaultProxyAddr = "127.0.0.1:8787"

// Config is read once from the environment at startup.
type Config struct {
	APIKey       string
	Endpoint     string
	Backend      string // "http" or "claude"
	Model        string
	ProxyAddr    string
	OnHigh       string // "ask", "block" or "override"
	QueryTimeout time.Duration
	SocketPath   string
	PIDPath      string
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{
		APIKey:       os.Getenv("ORCHO_API_KEY"),
		Endpoint:     envOr("ORCHO_RISK_ENDPOINT", DefaultRiskEndpoint),
		Backend:      strings.ToLower(envOr("ORCHO_RISK_BACKEND", "http")),
		Model:        envOr("ORCHO_RISK_MODEL", DefaultModel),
		ProxyAddr:    envOr("ORCHO_PROXY_ADDR", DefaultProxyAddr),
		OnHigh:       strings.ToLower(envOr("ORCHO_ON_HIGH", "ask")),
		QueryTimeout: DefaultQueryTimeout,
		SocketPath:   envOr("ORCHO_SOCKET_PATH", defaultSocketPath()),
		PIDPath:      defaultPIDPath(),
	}

	if v := os.Getenv("ORCHO_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid ORCHO_QUERY_TIMEOUT %q", v)
		}
		cfg.QueryTimeout = d
	}

	switch cfg.Backend {
	case "http", "claude":
	default:
		return Config{}, fmt.Errorf("unknown ORCHO_RISK_BACKEND %q", cfg.Backend)
	}

	if cfg.OnHigh != "ask" {
		if _, ok := ParseDecision(cfg.OnHigh); !ok {
			return Config{}, fmt.Errorf("unknown ORCHO_ON_HIGH %q", cfg.OnHigh)
		}
	}

	return cfg, nil
}

// NewScorer builds the configured scoring backend. The http backend needs
// an API key.
func (c Config) NewScorer() (Scorer, error) {
	switch c.Backend {
	case "claude":
		return NewClaudeScorer(c.Model), nil
	default:
		if c.APIKey == "" {
			return nil, fmt.Errorf("ORCHO_API_KEY is not set")
		}
		return NewHTTPScorer(c.Endpoint, c.APIKey, scoreTimeout), nil
	}
}

// DaemonConfig returns the daemon settings derived from c.
func (c Config) DaemonConfig() DaemonConfig {
	return DaemonConfig{
		IdleTimeout: defaultIdleTimeout,
		SocketPath:  c.SocketPath,
		PIDPath:     c.PIDPath,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- Path helpers ---

func configDir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "orcho-risk-guard")
}

func defaultSocketPath() string {
	return filepath.Join(configDir(), "daemon.sock")
}

func defaultPIDPath() string {
	return filepath.Join(configDir(), "daemon.pid")
}
