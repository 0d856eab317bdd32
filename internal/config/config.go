// internal/config/config.go
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token describes one supported deposit token.
type Token struct {
	Address  string `mapstructure:"address"`
	Decimals int    `mapstructure:"decimals"`
}

type Config struct {
	BackendURL           string           `mapstructure:"backend_url"`
	ProxyClassHash       string           `mapstructure:"proxy_class_hash"`
	ConfirmationAttempts int              `mapstructure:"confirmation_attempts"`
	ConfirmationDelayMs  int              `mapstructure:"confirmation_delay_ms"`
	HTTPTimeoutMs        int              `mapstructure:"http_timeout_ms"`
	DebugLogging         bool             `mapstructure:"debug_logging"`
	LogFile              string           `mapstructure:"log_file"`
	Tokens               map[string]Token `mapstructure:"tokens"`
}

const (
	DefaultConfirmationAttempts = 30
	DefaultConfirmationDelayMs  = 5000
	DefaultHTTPTimeoutMs        = 10000
)

// Mainnet addresses of the supported deposit tokens.
var defaultTokens = map[string]Token{
	"ETH":  {Address: "0x049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7", Decimals: 18},
	"USDC": {Address: "0x053c91253bc9682c04929ca02ed00b3e423f6710d2ee7e0d5ebb06f3ecf368a8", Decimals: 6},
	"STRK": {Address: "0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d", Decimals: 18},
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"confirmation_attempts": DefaultConfirmationAttempts,
		"confirmation_delay_ms": DefaultConfirmationDelayMs,
		"http_timeout_ms":       DefaultHTTPTimeoutMs,
		"log_file":              "logs/client.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	if len(cfg.Tokens) == 0 {
		cfg.Tokens = defaultTokens
	}

	return &cfg, validateConfig(&cfg)
}

// ConfirmationDelay returns the receipt poll interval as a duration.
func (c *Config) ConfirmationDelay() time.Duration {
	return time.Duration(c.ConfirmationDelayMs) * time.Millisecond
}

// HTTPTimeout returns the ledger request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

func validateConfig(cfg *Config) error {
	if cfg.BackendURL == "" {
		return errors.New("missing backend_url in configuration")
	}
	if err := validateHTTPURL(cfg.BackendURL); err != nil {
		return err
	}
	if cfg.ProxyClassHash == "" {
		return errors.New("missing proxy_class_hash in configuration")
	}
	if !strings.HasPrefix(cfg.ProxyClassHash, "0x") {
		return errors.New("proxy_class_hash must be a 0x-prefixed felt")
	}
	if cfg.ConfirmationAttempts <= 0 {
		return errors.New("invalid confirmation_attempts")
	}
	if cfg.ConfirmationDelayMs <= 0 {
		return errors.New("invalid confirmation_delay_ms")
	}
	if cfg.HTTPTimeoutMs <= 0 {
		return errors.New("invalid http_timeout_ms")
	}
	for symbol, token := range cfg.Tokens {
		if token.Address == "" || token.Decimals <= 0 {
			return errors.New("invalid token entry: " + symbol)
		}
	}
	return nil
}

func validateHTTPURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid backend_url format")
	}
	if !strings.HasPrefix(parsed.Scheme, "http") {
		return errors.New("backend_url must use http(s)")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("STARKLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envURL := v.GetString("BACKEND_URL"); envURL != "" {
		cfg.BackendURL = envURL
	}
	if envClassHash := v.GetString("PROXY_CLASS_HASH"); envClassHash != "" {
		cfg.ProxyClassHash = envClassHash
	}
}
