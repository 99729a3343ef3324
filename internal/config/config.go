package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Balance source kinds
const (
	BalanceSourceEsplora  = "esplora"
	BalanceSourceBitcoind = "bitcoind"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Pebble       PebbleConfig       `yaml:"pebble"`
	Counterparty CounterpartyConfig `yaml:"counterparty"`
	Balance      BalanceConfig      `yaml:"balance"`
	Query        QueryConfig        `yaml:"query"`
	Log          LogConfig          `yaml:"log"`
	Explorer     ExplorerConfig     `yaml:"explorer"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// PebbleConfig represents the Pebble database configuration
type PebbleConfig struct {
	Path string `yaml:"path"`
}

// CounterpartyConfig represents the dispenser API endpoint
type CounterpartyConfig struct {
	URL     string `yaml:"url"`
	User    string `yaml:"user"`
	Pass    string `yaml:"pass"`
	Timeout int    `yaml:"timeout"` // request timeout in seconds
}

// BalanceConfig selects and configures the UTXO balance source
type BalanceConfig struct {
	Source     string      `yaml:"source"` // "esplora" or "bitcoind"
	EsploraURL string      `yaml:"esplora_url"`
	Timeout    int         `yaml:"timeout"` // request timeout in seconds
	Bitcoin    ChainConfig `yaml:"bitcoin"`
}

// ChainConfig represents the configuration for a bitcoind node
type ChainConfig struct {
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	Pass       string `yaml:"pass"`
	Cert       string `yaml:"cert"`
	DisableTLS bool   `yaml:"disable_tls"`
}

// QueryConfig tunes caching, retries and background refresh
type QueryConfig struct {
	MaxRetries      int `yaml:"max_retries"`
	DispenserTTL    int `yaml:"dispenser_ttl"`    // seconds a dispenser entry stays fresh
	CacheSize       int `yaml:"cache_size"`       // max cached addresses per query kind
	RefreshInterval int `yaml:"refresh_interval"` // dispenser refresh interval in seconds, 0 disables
}

// LogConfig represents the logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// ExplorerConfig holds the transaction link template
type ExplorerConfig struct {
	TxURL string `yaml:"tx_url"` // fmt template with a single %s for the tx hash
}

// Default returns the configuration used when no file or env var overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Pebble: PebbleConfig{
			Path: "./data/pebble",
		},
		Counterparty: CounterpartyConfig{
			URL:     "http://api.counterparty.io:4000/api/",
			User:    "rpc",
			Pass:    "rpc",
			Timeout: 30,
		},
		Balance: BalanceConfig{
			Source:     BalanceSourceEsplora,
			EsploraURL: "https://mempool.space/api",
			Timeout:    30,
		},
		Query: QueryConfig{
			MaxRetries:      3,
			DispenserTTL:    60,
			CacheSize:       1024,
			RefreshInterval: 300,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Explorer: ExplorerConfig{
			TxURL: "https://xchain.io/tx/%s",
		},
	}
}

// Load loads configuration from a YAML file and environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if it exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be fixed up silently
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pebble.Path == "" {
		return fmt.Errorf("pebble path must not be empty")
	}
	if c.Counterparty.URL == "" {
		return fmt.Errorf("counterparty url must not be empty")
	}
	switch c.Balance.Source {
	case BalanceSourceEsplora:
		if c.Balance.EsploraURL == "" {
			return fmt.Errorf("esplora url must not be empty")
		}
	case BalanceSourceBitcoind:
		if c.Balance.Bitcoin.Host == "" {
			return fmt.Errorf("bitcoind host must not be empty")
		}
	default:
		return fmt.Errorf("unknown balance source: %q", c.Balance.Source)
	}
	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Query.DispenserTTL <= 0 {
		return fmt.Errorf("dispenser ttl must be positive")
	}
	if c.Query.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Query.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	return nil
}

func (c *Config) loadEnv() {
	// Server config
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Pebble config
	if path := os.Getenv("PEBBLE_PATH"); path != "" {
		c.Pebble.Path = path
	}

	// Counterparty config
	if url := os.Getenv("COUNTERPARTY_URL"); url != "" {
		c.Counterparty.URL = url
	}
	if user := os.Getenv("COUNTERPARTY_USER"); user != "" {
		c.Counterparty.User = user
	}
	if pass := os.Getenv("COUNTERPARTY_PASS"); pass != "" {
		c.Counterparty.Pass = pass
	}
	loadIntEnv("COUNTERPARTY_TIMEOUT", &c.Counterparty.Timeout)

	// Balance config
	if source := os.Getenv("BALANCE_SOURCE"); source != "" {
		c.Balance.Source = source
	}
	if url := os.Getenv("ESPLORA_URL"); url != "" {
		c.Balance.EsploraURL = url
	}
	loadIntEnv("BALANCE_TIMEOUT", &c.Balance.Timeout)
	c.loadChainEnv(&c.Balance.Bitcoin, "BTC")

	// Query config
	loadIntEnv("QUERY_MAX_RETRIES", &c.Query.MaxRetries)
	loadIntEnv("QUERY_DISPENSER_TTL", &c.Query.DispenserTTL)
	loadIntEnv("QUERY_CACHE_SIZE", &c.Query.CacheSize)
	loadIntEnv("REFRESH_INTERVAL", &c.Query.RefreshInterval)

	// Log config
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if txURL := os.Getenv("EXPLORER_TX_URL"); txURL != "" {
		c.Explorer.TxURL = txURL
	}
}

func (c *Config) loadChainEnv(chain *ChainConfig, prefix string) {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		chain.Host = host
	}
	if user := os.Getenv(prefix + "_USER"); user != "" {
		chain.User = user
	}
	if pass := os.Getenv(prefix + "_PASS"); pass != "" {
		chain.Pass = pass
	}
	if cert := os.Getenv(prefix + "_CERT"); cert != "" {
		chain.Cert = cert
	}
	if disableTLS := os.Getenv(prefix + "_DISABLE_TLS"); disableTLS != "" {
		chain.DisableTLS = disableTLS == "true" || disableTLS == "1"
	}
}

func loadIntEnv(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
