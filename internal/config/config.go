package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/vitos/lendflow/internal/domain"
	"github.com/vitos/lendflow/internal/infrastructure/logger"
	"gopkg.in/yaml.v3"
)

const (
	EnvBridgeAPIKey    = "LENDFLOW_BRIDGE_API_KEY"
	EnvBridgeAPISecret = "LENDFLOW_BRIDGE_API_SECRET"
	EnvWalletAddress   = "LENDFLOW_WALLET_ADDRESS"
)

type Config struct {
	Chains []string `yaml:"chains"`
	Bridge struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		TimeoutMs    int    `yaml:"timeout_ms"`
	} `yaml:"bridge"`
	Prices struct {
		Endpoint   string `yaml:"endpoint"`
		RatePerMin int    `yaml:"rate_per_min"`
		TimeoutMs  int    `yaml:"timeout_ms"`
	} `yaml:"prices"`
	Wallet struct {
		Address string `yaml:"address"`
	} `yaml:"wallet"`
	Polling struct {
		FormsMs         int `yaml:"forms_ms"`
		MarketsMs       int `yaml:"markets_ms"`
		LoansMs         int `yaml:"loans_ms"`
		PricesMs        int `yaml:"prices_ms"`
		MinTriggerGapMs int `yaml:"min_trigger_gap_ms"`
		ConfirmDelayMs  int `yaml:"confirm_delay_ms"`
	} `yaml:"polling"`
	Storage struct {
		SQLitePath  string `yaml:"sqlite_path"`
		SnapshotDir string `yaml:"snapshot_dir"`
	} `yaml:"storage"`
	Logging struct {
		Level    string            `yaml:"level"`
		Encoding string            `yaml:"encoding"`
		File     logger.FileConfig `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Load reads the YAML file at path, applies .env and environment overrides
// for secrets, fills defaults and validates the result. A missing .env file
// is not an error.
func Load(path, envFile string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBridgeAPIKey)); v != "" {
		cfg.Bridge.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBridgeAPISecret)); v != "" {
		cfg.Bridge.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWalletAddress)); v != "" {
		cfg.Wallet.Address = v
	}
}

func (cfg *Config) normalize() {
	chains := make([]string, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			chains = append(chains, c)
		}
	}
	if len(chains) == 0 {
		chains = []string{"ethereum"}
	}
	cfg.Chains = chains

	cfg.Bridge.RESTEndpoint = strings.TrimRight(strings.TrimSpace(cfg.Bridge.RESTEndpoint), "/")
	cfg.Bridge.WSEndpoint = strings.TrimSpace(cfg.Bridge.WSEndpoint)
	cfg.Prices.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Prices.Endpoint), "/")
	cfg.Wallet.Address = strings.TrimSpace(cfg.Wallet.Address)

	if cfg.Bridge.TimeoutMs <= 0 {
		cfg.Bridge.TimeoutMs = 10000
	}
	if cfg.Prices.TimeoutMs <= 0 {
		cfg.Prices.TimeoutMs = 10000
	}
	if cfg.Polling.FormsMs == 0 {
		cfg.Polling.FormsMs = 60000
	}
	if cfg.Polling.MarketsMs == 0 {
		cfg.Polling.MarketsMs = 300000
	}
	if cfg.Polling.LoansMs == 0 {
		cfg.Polling.LoansMs = 60000
	}
	if cfg.Polling.PricesMs == 0 {
		cfg.Polling.PricesMs = 300000
	}
	if cfg.Polling.MinTriggerGapMs == 0 {
		cfg.Polling.MinTriggerGapMs = 12000
	}
	if cfg.Polling.ConfirmDelayMs == 0 {
		cfg.Polling.ConfirmDelayMs = 5000
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "lendflow.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
}

func (cfg *Config) validate() error {
	if cfg.Bridge.RESTEndpoint == "" {
		return fmt.Errorf("bridge: rest_endpoint is required")
	}
	if cfg.Prices.Endpoint == "" {
		return fmt.Errorf("prices: endpoint is required")
	}
	if cfg.Wallet.Address != "" && !common.IsHexAddress(cfg.Wallet.Address) {
		return fmt.Errorf("wallet: invalid address %q", cfg.Wallet.Address)
	}
	if cfg.Polling.FormsMs < 0 || cfg.Polling.MarketsMs < 0 || cfg.Polling.LoansMs < 0 || cfg.Polling.PricesMs < 0 {
		return fmt.Errorf("polling: intervals must be non-negative")
	}
	if cfg.Prices.RatePerMin < 0 {
		return fmt.Errorf("prices: rate_per_min must be non-negative")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", cfg.Server.Port)
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (cfg *Config) ChainIDs() []domain.ChainID {
	out := make([]domain.ChainID, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		out = append(out, domain.ChainID(c))
	}
	return out
}

func (cfg *Config) BridgeTimeout() time.Duration   { return ms(cfg.Bridge.TimeoutMs) }
func (cfg *Config) PricesTimeout() time.Duration   { return ms(cfg.Prices.TimeoutMs) }
func (cfg *Config) FormsInterval() time.Duration   { return ms(cfg.Polling.FormsMs) }
func (cfg *Config) MarketsInterval() time.Duration { return ms(cfg.Polling.MarketsMs) }
func (cfg *Config) LoansInterval() time.Duration   { return ms(cfg.Polling.LoansMs) }
func (cfg *Config) PricesInterval() time.Duration  { return ms(cfg.Polling.PricesMs) }
func (cfg *Config) MinTriggerGap() time.Duration   { return ms(cfg.Polling.MinTriggerGapMs) }
func (cfg *Config) ConfirmDelay() time.Duration    { return ms(cfg.Polling.ConfirmDelayMs) }

// Sanitized returns a copy with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	if clone.Bridge.APISecret != "" {
		clone.Bridge.APISecret = "***"
	}
	if clone.Bridge.APIKey != "" {
		clone.Bridge.APIKey = "***"
	}
	return clone
}
