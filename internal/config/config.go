// Package config loads the tracker's hot-reloadable YAML configuration
// (spec.md §6, SPEC_FULL.md §6.1), grounded on the trading bot's own
// viper + fsnotify Manager: same SetDefault/WatchConfig/OnConfigChange
// shape, generalized from wallet/trading fields to stream/RPC/pool-
// monitoring/metadata fields. Secrets are never stored in the struct;
// every *APIKey/*Token accessor (StreamToken, RPCPrimaryAPIKey,
// RPCFallbackAPIKey, MetadataAPIKey) resolves its env var at call time.
package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all tracker configuration.
type Config struct {
	Stream         StreamConfig         `mapstructure:"stream"`
	RPC            RPCConfig            `mapstructure:"rpc"`
	PoolMonitoring PoolMonitoringConfig `mapstructure:"pool_monitoring"`
	Metadata       MetadataConfig       `mapstructure:"metadata"`
	PriceOracle    PriceOracleConfig    `mapstructure:"price_oracle"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Control        ControlConfig        `mapstructure:"control"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

type StreamConfig struct {
	URL        string `mapstructure:"url"`
	TokenEnv   string `mapstructure:"token_env"`
	Commitment string `mapstructure:"commitment"`
}

type RPCConfig struct {
	PrimaryURL        string `mapstructure:"primary_url"`
	PrimaryAPIKeyEnv  string `mapstructure:"primary_api_key_env"`
	FallbackURL       string `mapstructure:"fallback_url"`
	FallbackAPIKeyEnv string `mapstructure:"fallback_api_key_env"`
}

type PoolMonitoringConfig struct {
	MaxDurationSeconds int `mapstructure:"max_duration_seconds"`
}

type MetadataConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKeyEnv      string `mapstructure:"api_key_env"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type PriceOracleConfig struct {
	QuoteAPIURL      string `mapstructure:"quote_api_url"`
	RefreshSeconds   int    `mapstructure:"refresh_seconds"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
}

type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ControlConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Manager handles config loading and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads configPath as YAML, applying defaults for anything
// left unset, and watches the file for changes.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("stream.commitment", "CONFIRMED")
	v.SetDefault("stream.token_env", "STREAM_TOKEN")
	v.SetDefault("rpc.primary_api_key_env", "SOLANA_RPC_API_KEY")
	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.fallback_api_key_env", "SOLANA_FALLBACK_RPC_API_KEY")
	v.SetDefault("pool_monitoring.max_duration_seconds", 60)
	v.SetDefault("metadata.api_key_env", "METADATA_API_KEY")
	v.SetDefault("metadata.timeout_seconds", 10)
	v.SetDefault("price_oracle.quote_api_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("price_oracle.refresh_seconds", 10)
	v.SetDefault("price_oracle.timeout_seconds", 10)
	v.SetDefault("storage.sqlite_path", "./data/tracker.db")
	v.SetDefault("control.host", "0.0.0.0")
	v.SetDefault("control.port", 8090)
	v.SetDefault("metrics.listen_addr", "0.0.0.0:9090")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{config: &cfg, viper: v}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback fired after every successful reload.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// StreamToken resolves STREAM_URL's auth token from the environment.
func (m *Manager) StreamToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Stream.TokenEnv)
}

// RPCPrimaryAPIKey resolves the primary chain RPC's API key.
func (m *Manager) RPCPrimaryAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.PrimaryAPIKeyEnv)
}

// RPCFallbackAPIKey resolves the fallback chain RPC's API key.
func (m *Manager) RPCFallbackAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
}

// MetadataAPIKey resolves the creator-history API key. A blank result
// disables the delayed creator-token-count job (spec §6).
func (m *Manager) MetadataAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Metadata.APIKeyEnv)
}

// PoolMonitoringMaxDuration returns the configured session ceiling.
func (m *Manager) PoolMonitoringMaxDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.PoolMonitoring.MaxDurationSeconds) * time.Second
}

// Dump marshals the current config back to YAML as an effective-config
// snapshot (secrets are never stored in the struct, so nothing
// sensitive leaks through this path).
func (m *Manager) Dump() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}
