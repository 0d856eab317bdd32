// Package starkloop is the transaction orchestration core for leveraged
// on-chain positions. An embedding client (a UI, usually) constructs one
// Client, connects a wallet through it and drives the position lifecycle:
// open, add deposit, close, withdraw. The client coordinates the wallet, the
// chain and the position ledger so that none of the three ends up with a
// state the others do not know about.
package starkloop

import (
	"context"
	"fmt"

	"github.com/starkloop/starkloop/internal/backend"
	"github.com/starkloop/starkloop/internal/chain"
	"github.com/starkloop/starkloop/internal/config"
	"github.com/starkloop/starkloop/internal/deploy"
	"github.com/starkloop/starkloop/internal/events"
	"github.com/starkloop/starkloop/internal/logger"
	"github.com/starkloop/starkloop/internal/metrics"
	"github.com/starkloop/starkloop/internal/position"
	"github.com/starkloop/starkloop/internal/session"
)

const defaultEventBuffer = 64

// Options configures a Client. Provider and Connectors are the chain-side
// adapters the embedding client supplies; everything else comes from the
// config file.
type Options struct {
	ConfigPath  string
	Provider    chain.Provider
	Connectors  []chain.Connector
	SessionFile string
}

// Client wires the orchestration core together and is the only type an
// embedding client needs to hold on to.
type Client struct {
	config       *config.Config
	log          *logger.Logger
	bus          *events.Bus
	gateway      *chain.Gateway
	ledger       *backend.Client
	deployer     *deploy.Manager
	orchestrator *position.Orchestrator
	sessions     *session.Store
}

// New loads configuration and assembles the orchestration core.
func New(opts Options) (*Client, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("a chain provider is required")
	}
	if len(opts.Connectors) == 0 {
		return nil, fmt.Errorf("at least one wallet connector is required")
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		Development: cfg.DebugLogging,
		MaxSize:     50,
		MaxBackups:  3,
		MaxAge:      14,
		Compress:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	bus := events.NewBus(log.Logger, defaultEventBuffer)
	collector := metrics.NewCollector()

	gateway := chain.NewGateway(opts.Provider, opts.Connectors, chain.Config{
		ConfirmationAttempts: cfg.ConfirmationAttempts,
		ConfirmationInterval: cfg.ConfirmationDelay(),
	}, log.Logger)

	ledger := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout(), log.Logger)
	deployer := deploy.NewManager(gateway, ledger, cfg.ProxyClassHash, bus, collector, log.Logger)
	orchestrator := position.NewOrchestrator(gateway, ledger, deployer, cfg.Tokens, bus, collector, log)

	sessionFile := opts.SessionFile
	if sessionFile == "" {
		sessionFile = ".starkloop/session.yaml"
	}

	return &Client{
		config:       cfg,
		log:          log,
		bus:          bus,
		gateway:      gateway,
		ledger:       ledger,
		deployer:     deployer,
		orchestrator: orchestrator,
		sessions:     session.NewStore(sessionFile, log.Logger),
	}, nil
}

// Events exposes the lifecycle event bus for the embedding UI to subscribe
// on.
func (c *Client) Events() *events.Bus {
	return c.bus
}

// Connectors lists the wallet connectors available to Connect.
func (c *Client) Connectors() []string {
	return c.gateway.Connectors()
}

// Connect opens a wallet session and caches it for later restore.
func (c *Client) Connect(ctx context.Context, connectorID string) (chain.Session, error) {
	s, err := c.gateway.Connect(ctx, connectorID)
	if err != nil {
		return chain.Session{}, err
	}

	if err := c.sessions.Save(session.Cached{
		WalletAddress: s.Address,
		ConnectorID:   s.ConnectorID,
	}); err != nil {
		// The session itself is fine; only the restore hint is lost.
		c.log.WithWallet(s.Address).Warn("Could not cache wallet session")
	}

	_ = c.bus.Publish(events.WalletConnectedEvent{
		BaseEvent:     events.NewBase(events.WalletConnected),
		WalletAddress: s.Address,
		ConnectorID:   s.ConnectorID,
	})
	return *s, nil
}

// CachedSession returns the previously connected wallet, if any, so the
// embedding client can offer a one-click reconnect.
func (c *Client) CachedSession() (*session.Cached, error) {
	return c.sessions.Load()
}

// Logout disconnects the wallet and forgets the cached session.
func (c *Client) Logout() error {
	if address, err := c.gateway.Address(); err == nil {
		c.log.WithWallet(address).Info("Logging out")
	}
	c.gateway.Disconnect()
	return c.sessions.Clear()
}

// Address returns the connected wallet address.
func (c *Client) Address() (string, error) {
	return c.gateway.Address()
}

// RefreshMultipliers re-fetches the platform's per-token leverage ceilings
// used during intent validation. Call it once after startup and whenever the
// platform reprices.
func (c *Client) RefreshMultipliers(ctx context.Context) error {
	return c.orchestrator.RefreshMultipliers(ctx)
}

// EnsureDeployed makes sure the connected wallet has its proxy contract,
// deploying one if needed, and returns its address.
func (c *Client) EnsureDeployed(ctx context.Context) (string, error) {
	address, err := c.gateway.Address()
	if err != nil {
		return "", err
	}
	return c.deployer.EnsureDeployed(ctx, address)
}

// OpenPosition runs the full open-position flow for the connected wallet.
func (c *Client) OpenPosition(ctx context.Context, tokenSymbol, amount, multiplier string) *position.TransactionResult {
	address, err := c.gateway.Address()
	if err != nil {
		return notConnectedResult(err)
	}
	return c.orchestrator.OpenPosition(ctx, position.Intent{
		WalletAddress: address,
		TokenSymbol:   tokenSymbol,
		Amount:        amount,
		Multiplier:    multiplier,
	})
}

// AddDeposit adds funds to the wallet's open position.
func (c *Client) AddDeposit(ctx context.Context, positionID, tokenSymbol, amount string) *position.TransactionResult {
	address, err := c.gateway.Address()
	if err != nil {
		return notConnectedResult(err)
	}
	return c.orchestrator.AddDeposit(ctx, position.DepositIntent{
		WalletAddress: address,
		PositionID:    positionID,
		TokenSymbol:   tokenSymbol,
		Amount:        amount,
	})
}

// ClosePosition closes the wallet's open position.
func (c *Client) ClosePosition(ctx context.Context) *position.TransactionResult {
	address, err := c.gateway.Address()
	if err != nil {
		return notConnectedResult(err)
	}
	return c.orchestrator.ClosePosition(ctx, address)
}

// WithdrawAll closes the open position and withdraws the full balance of
// every given token, in order.
func (c *Client) WithdrawAll(ctx context.Context, tokens []string) *position.TransactionResult {
	address, err := c.gateway.Address()
	if err != nil {
		return notConnectedResult(err)
	}
	return c.orchestrator.WithdrawAll(ctx, address, tokens)
}

// HasOpenPosition asks the ledger whether the connected wallet has an open
// position.
func (c *Client) HasOpenPosition(ctx context.Context) (bool, error) {
	address, err := c.gateway.Address()
	if err != nil {
		return false, err
	}
	check, err := c.ledger.CheckPosition(ctx, address)
	if err != nil {
		return false, err
	}
	return check.HasOpenedPosition, nil
}

// Shutdown flushes logs and stops event delivery. The client is unusable
// afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.bus.Shutdown(ctx)
	_ = c.log.Sync()
	return err
}

func notConnectedResult(err error) *position.TransactionResult {
	return &position.TransactionResult{
		Success:   false,
		ErrorKind: position.Classify(err),
		Message:   err.Error(),
	}
}
