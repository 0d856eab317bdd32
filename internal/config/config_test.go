// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
backend_url: https://backend.example.com
proxy_class_hash: "0x4a1b2c"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example.com", cfg.BackendURL)
	assert.Equal(t, "0x4a1b2c", cfg.ProxyClassHash)
	assert.Equal(t, DefaultConfirmationAttempts, cfg.ConfirmationAttempts)
	assert.Equal(t, 5*time.Second, cfg.ConfirmationDelay())
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "logs/client.log", cfg.LogFile)

	// Supported tokens fall back to the mainnet set.
	require.Contains(t, cfg.Tokens, "ETH")
	assert.Equal(t, 18, cfg.Tokens["ETH"].Decimals)
	require.Contains(t, cfg.Tokens, "USDC")
	assert.Equal(t, 6, cfg.Tokens["USDC"].Decimals)
	require.Contains(t, cfg.Tokens, "STRK")
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfigFile(t, `
backend_url: https://backend.example.com
proxy_class_hash: "0x4a1b2c"
confirmation_attempts: 10
confirmation_delay_ms: 1000
http_timeout_ms: 3000
debug_logging: true
tokens:
  WBTC:
    address: "0x03fe2b97c1fd336e750087d68b9b867997fd64a2661ff3ca5a7c771641e8e7ac"
    decimals: 8
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.ConfirmationAttempts)
	assert.Equal(t, time.Second, cfg.ConfirmationDelay())
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout())
	assert.True(t, cfg.DebugLogging)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, 8, cfg.Tokens["WBTC"].Decimals)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("STARKLOOP_BACKEND_URL", "https://staging.example.com")
	t.Setenv("STARKLOOP_PROXY_CLASS_HASH", "0xdeadbeef")

	path := writeConfigFile(t, `
backend_url: https://backend.example.com
proxy_class_hash: "0x4a1b2c"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", cfg.BackendURL)
	assert.Equal(t, "0xdeadbeef", cfg.ProxyClassHash)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing backend_url", content: `
proxy_class_hash: "0x4a1b2c"
`},
		{name: "bad backend_url scheme", content: `
backend_url: ftp://backend.example.com
proxy_class_hash: "0x4a1b2c"
`},
		{name: "missing proxy_class_hash", content: `
backend_url: https://backend.example.com
`},
		{name: "class hash without 0x prefix", content: `
backend_url: https://backend.example.com
proxy_class_hash: "4a1b2c"
`},
		{name: "zero confirmation attempts", content: `
backend_url: https://backend.example.com
proxy_class_hash: "0x4a1b2c"
confirmation_attempts: 0
`},
		{name: "token without decimals", content: `
backend_url: https://backend.example.com
proxy_class_hash: "0x4a1b2c"
tokens:
  ETH:
    address: "0x1"
    decimals: 0
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
