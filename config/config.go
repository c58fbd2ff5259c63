package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the runtime configuration of the staking daemon.
type Config struct {
	ListenAddress string        `toml:"ListenAddress"`
	DataDir       string        `toml:"DataDir"`
	GenesisFile   string        `toml:"GenesisFile"`
	Environment   string        `toml:"Environment"`
	TickInterval  time.Duration `toml:"TickInterval"`
	AllowMigrate  bool          `toml:"AllowMigrate"`

	Log       LogConfig       `toml:"log"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Pauses    Pauses          `toml:"pauses"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// AuthConfig configures bearer token verification for mutating routes.
type AuthConfig struct {
	JWTSecret    string `toml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
}

// RateLimitConfig bounds per-caller request throughput. TrustProxyHeaders
// keys anonymous callers by X-Real-IP and must only be set behind a proxy that
// overwrites the header.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	TrustProxyHeaders bool    `toml:"TrustProxyHeaders"`
}

// IndexerConfig selects the SQL store used for event history.
type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Pauses halts user operations per module independently of the on-ledger
// pause flag.
type Pauses struct {
	Staking bool `toml:"Staking"`
}

// IsPaused reports whether module is halted by configuration.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "staking":
		return p.Staking
	default:
		return false
	}
}

const (
	IndexerDriverSQLite   = "sqlite"
	IndexerDriverPostgres = "postgres"
)

// Load loads the configuration from the given path. A default file is
// written when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for fresh installs.
func Default() *Config {
	return &Config{
		ListenAddress: ":8090",
		DataDir:       "./stake-data",
		GenesisFile:   "genesis.yaml",
		Environment:   "local",
		TickInterval:  time.Second,
		Log:           LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		Auth:          AuthConfig{JWTSecretEnv: "STAKED_JWT_SECRET", Issuer: "stakectl"},
		RateLimit:     RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Indexer:       IndexerConfig{Driver: IndexerDriverSQLite, DSN: "events.db"},
		Telemetry:     TelemetryConfig{Endpoint: "localhost:4318", Insecure: true},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = IndexerDriverSQLite
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
}

// ResolveJWTSecret returns the inline secret or the value of the configured
// environment variable.
func (c *Config) ResolveJWTSecret() string {
	if secret := strings.TrimSpace(c.Auth.JWTSecret); secret != "" {
		return secret
	}
	if env := strings.TrimSpace(c.Auth.JWTSecretEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// ResolvePath anchors a relative path at the directory holding the config
// file.
func ResolvePath(configPath, target string) string {
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(configPath), target)
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
