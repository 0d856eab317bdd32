// internal/session/store.go
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Cached is the only local state the client persists: the last connected
// wallet, so a restarted client can offer to restore the session.
type Cached struct {
	WalletAddress string `yaml:"wallet_address"`
	ConnectorID   string `yaml:"connector_id"`
}

// Store reads and writes the session cache file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   filepath.Clean(path),
		logger: logger.Named("session-store"),
	}
}

// Save persists the connected wallet for later restore.
func (s *Store) Save(cached Cached) error {
	if cached.WalletAddress == "" {
		return errors.New("refusing to cache empty wallet address")
	}
	data, err := yaml.Marshal(&cached)
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session cache dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	s.logger.Debug("Session cached", zap.String("wallet", cached.WalletAddress))
	return nil
}

// Load returns the cached session, or nil when none exists.
func (s *Store) Load() (*Cached, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session cache: %w", err)
	}
	var cached Cached
	if err := yaml.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("parse session cache: %w", err)
	}
	if cached.WalletAddress == "" {
		return nil, nil
	}
	return &cached, nil
}

// Clear removes the cache; called on logout.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}
