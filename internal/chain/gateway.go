// internal/chain/gateway.go
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultConfirmationAttempts caps the receipt poll loop. Together with
	// the default interval this gives submitted transactions 150s to land.
	DefaultConfirmationAttempts = 30
	DefaultConfirmationInterval = 5 * time.Second
)

// Config tunes the gateway's confirmation polling.
type Config struct {
	ConfirmationAttempts int
	ConfirmationInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfirmationAttempts <= 0 {
		c.ConfirmationAttempts = DefaultConfirmationAttempts
	}
	if c.ConfirmationInterval <= 0 {
		c.ConfirmationInterval = DefaultConfirmationInterval
	}
	return c
}

// Gateway is a thin adapter over the external wallet provider: it owns the
// single wallet session and funnels every on-chain interaction of the core
// through the Account/Provider capability interfaces.
type Gateway struct {
	mu         sync.RWMutex
	session    *Session
	account    Account
	provider   Provider
	connectors map[string]Connector
	config     Config
	logger     *zap.Logger
}

// NewGateway constructs a gateway over the given read provider and wallet
// connectors.
func NewGateway(provider Provider, connectors []Connector, config Config, logger *zap.Logger) *Gateway {
	byID := make(map[string]Connector, len(connectors))
	for _, c := range connectors {
		byID[c.ID()] = c
	}
	return &Gateway{
		provider:   provider,
		connectors: byID,
		config:     config.withDefaults(),
		logger:     logger.Named("wallet-gateway"),
	}
}

// Connectors lists the IDs of the wallet connectors available to Connect.
func (g *Gateway) Connectors() []string {
	ids := make([]string, 0, len(g.connectors))
	for id := range g.connectors {
		ids = append(ids, id)
	}
	return ids
}

// Connect opens a wallet session through the named connector. A successful
// connect replaces any previous session.
func (g *Gateway) Connect(ctx context.Context, connectorID string) (*Session, error) {
	connector, ok := g.connectors[connectorID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown connector %q", ErrConnection, connectorID)
	}

	account, err := connector.Connect(ctx)
	if err != nil {
		g.logger.Error("Wallet connect failed",
			zap.String("connector", connectorID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if account == nil || account.Address() == "" {
		return nil, fmt.Errorf("%w: connector %q returned no account", ErrConnection, connectorID)
	}

	session := &Session{
		Address:     account.Address(),
		ConnectorID: connectorID,
		IsConnected: true,
	}

	g.mu.Lock()
	g.account = account
	g.session = session
	g.mu.Unlock()

	g.logger.Info("Wallet connected",
		zap.String("connector", connectorID),
		zap.String("address", session.Address))
	return session, nil
}

// Disconnect destroys the active session, if any.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		g.logger.Info("Wallet disconnected", zap.String("address", g.session.Address))
	}
	g.session = nil
	g.account = nil
}

// Session returns a copy of the active session.
func (g *Gateway) Session() (Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return Session{}, ErrNotConnected
	}
	return *g.session, nil
}

// Address returns the address of the connected wallet.
func (g *Gateway) Address() (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return "", ErrNotConnected
	}
	return g.session.Address, nil
}

func (g *Gateway) activeAccount() (Account, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.account == nil {
		return nil, ErrNotConnected
	}
	return g.account, nil
}

// ExecuteBundle submits all calls as one atomic wallet transaction and
// returns the transaction hash.
func (g *Gateway) ExecuteBundle(ctx context.Context, calls Bundle) (string, error) {
	if len(calls) == 0 {
		return "", fmt.Errorf("%w: empty call bundle", ErrSubmission)
	}
	account, err := g.activeAccount()
	if err != nil {
		return "", err
	}

	result, err := account.Execute(ctx, calls)
	if err != nil {
		if IsUserRejection(err) {
			g.logger.Info("Bundle rejected by user", zap.Int("calls", len(calls)))
			return "", fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		g.logger.Error("Bundle submission failed",
			zap.Int("calls", len(calls)),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	g.logger.Info("Bundle submitted",
		zap.Int("calls", len(calls)),
		zap.String("tx_hash", result.TransactionHash))
	return result.TransactionHash, nil
}

// DeployContract submits a contract deployment through the connected wallet.
func (g *Gateway) DeployContract(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	account, err := g.activeAccount()
	if err != nil {
		return nil, err
	}

	result, err := account.DeployContract(ctx, req)
	if err != nil {
		if IsUserRejection(err) {
			return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		g.logger.Error("Contract deployment submission failed",
			zap.String("class_hash", req.ClassHash),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	g.logger.Info("Contract deployment submitted",
		zap.String("tx_hash", result.TransactionHash),
		zap.String("contract_address", result.ContractAddress))
	return result, nil
}

// PredictDeploymentAddress returns the address the request would deploy to.
func (g *Gateway) PredictDeploymentAddress(req DeployRequest) (string, error) {
	account, err := g.activeAccount()
	if err != nil {
		return "", err
	}
	addr, err := account.AddressForDeployment(req)
	if err != nil {
		return "", fmt.Errorf("predict deployment address: %w", err)
	}
	return addr, nil
}

// ReadContract performs a read-only entrypoint call.
func (g *Gateway) ReadContract(ctx context.Context, call Call) ([]string, error) {
	result, err := g.provider.CallContract(ctx, call)
	if err != nil {
		g.logger.Debug("Contract read failed",
			zap.String("contract", call.ContractAddress),
			zap.String("entrypoint", call.Entrypoint),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return result, nil
}

// ClassHashAt returns the class hash deployed at the address, empty when the
// address holds no contract.
func (g *Gateway) ClassHashAt(ctx context.Context, contractAddress string) (string, error) {
	hash, err := g.provider.ClassHashAt(ctx, contractAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}
	return hash, nil
}

// WaitForConfirmation polls for the transaction receipt until the chain
// reports a terminal status or the attempt budget runs out. Receipt lookups
// that fail (hash not yet indexed) count as attempts but do not abort the
// wait.
func (g *Gateway) WaitForConfirmation(ctx context.Context, txHash string) (*Receipt, error) {
	ticker := time.NewTicker(g.config.ConfirmationInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= g.config.ConfirmationAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		receipt, err := g.provider.TransactionReceipt(ctx, txHash)
		if err != nil {
			g.logger.Debug("Receipt not available yet",
				zap.String("tx_hash", txHash),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		switch receipt.Status {
		case StatusAccepted:
			g.logger.Info("Transaction confirmed",
				zap.String("tx_hash", txHash),
				zap.Uint64("block", receipt.BlockNumber))
			return receipt, nil
		case StatusRejected, StatusReverted:
			g.logger.Error("Transaction failed on chain",
				zap.String("tx_hash", txHash),
				zap.String("status", string(receipt.Status)),
				zap.String("revert_reason", receipt.RevertReason))
			return receipt, fmt.Errorf("%w: transaction %s %s", ErrSubmission, txHash, receipt.Status)
		default:
			// still pending, keep polling
		}
	}

	g.logger.Error("Confirmation attempts exhausted",
		zap.String("tx_hash", txHash),
		zap.Int("attempts", g.config.ConfirmationAttempts))
	return nil, fmt.Errorf("%w: %s not confirmed after %d attempts",
		ErrConfirmationTimeout, txHash, g.config.ConfirmationAttempts)
}
