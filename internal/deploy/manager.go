// internal/deploy/manager.go
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/starkloop/starkloop/internal/backend"
	"github.com/starkloop/starkloop/internal/chain"
	"github.com/starkloop/starkloop/internal/events"
	"github.com/starkloop/starkloop/internal/metrics"
)

var (
	// ErrDeployFailed means the wallet refused or the deployment transaction
	// did not confirm. The whole attempt must be retried by the user.
	ErrDeployFailed = errors.New("contract deployment failed")

	// ErrDeployPersist means the contract is live on chain but the ledger
	// write failed. Recoverable: the next EnsureDeployed call re-checks the
	// chain and only retries the ledger write.
	ErrDeployPersist = errors.New("contract deployed but not persisted to ledger")
)

// State tracks where a wallet is in the deployment lifecycle.
type State string

const (
	StateUnknown     State = "unknown"
	StateChecking    State = "checking"
	StateNotDeployed State = "not_deployed"
	StateDeploying   State = "deploying"
	StateDeployed    State = "deployed"
)

// WalletGateway is the slice of the wallet gateway the manager needs.
type WalletGateway interface {
	DeployContract(ctx context.Context, req chain.DeployRequest) (*chain.DeployResult, error)
	PredictDeploymentAddress(req chain.DeployRequest) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string) (*chain.Receipt, error)
	ClassHashAt(ctx context.Context, contractAddress string) (string, error)
}

// Ledger is the slice of the backend client the manager needs.
type Ledger interface {
	CheckUser(ctx context.Context, walletID string) (*backend.DeploymentRecord, error)
	UpdateUserContract(ctx context.Context, walletID, contractAddress string) error
}

// Manager guarantees each wallet gets exactly one proxy contract. The ledger
// record is the cross-session source of truth; the chain itself is the
// fallback authority when ledger and chain disagree.
type Manager struct {
	gateway   WalletGateway
	ledger    Ledger
	bus       *events.Bus
	metrics   *metrics.Collector
	logger    *zap.Logger
	classHash string

	mu     sync.Mutex
	states map[string]State
}

// NewManager constructs a deployment manager for the given proxy class.
func NewManager(gateway WalletGateway, ledger Ledger, classHash string, bus *events.Bus, collector *metrics.Collector, logger *zap.Logger) *Manager {
	return &Manager{
		gateway:   gateway,
		ledger:    ledger,
		bus:       bus,
		metrics:   collector,
		logger:    logger.Named("deploy-manager"),
		classHash: classHash,
		states:    make(map[string]State),
	}
}

// State returns the last observed deployment state for a wallet.
func (m *Manager) State(walletAddress string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[walletAddress]; ok {
		return s
	}
	return StateUnknown
}

func (m *Manager) setState(walletAddress string, s State) {
	m.mu.Lock()
	m.states[walletAddress] = s
	m.mu.Unlock()
}

// deployRequestFor builds the deployment descriptor for a wallet. The salt is
// the wallet address itself, which makes the resulting contract address
// deterministic per wallet and lets reconciliation re-derive it.
func (m *Manager) deployRequestFor(walletAddress string) chain.DeployRequest {
	return chain.DeployRequest{
		ClassHash:           m.classHash,
		Salt:                walletAddress,
		ConstructorCalldata: []string{walletAddress},
		Unique:              true,
	}
}

// EnsureDeployed returns the wallet's proxy contract address, deploying it
// first if neither the ledger nor the chain knows one. Never deploys twice
// for the same wallet.
func (m *Manager) EnsureDeployed(ctx context.Context, walletAddress string) (string, error) {
	m.setState(walletAddress, StateChecking)

	record, err := m.ledger.CheckUser(ctx, walletAddress)
	if err != nil {
		m.setState(walletAddress, StateUnknown)
		return "", fmt.Errorf("check deployment record: %w", err)
	}

	if record.IsContractDeployed {
		m.setState(walletAddress, StateDeployed)
		m.logger.Debug("Proxy contract already deployed",
			zap.String("wallet", walletAddress),
			zap.String("contract", record.ContractAddress))
		return record.ContractAddress, nil
	}
	m.setState(walletAddress, StateNotDeployed)

	req := m.deployRequestFor(walletAddress)

	// The ledger may lag the chain after a failed persist. Re-derive the
	// deterministic address and ask the chain before deploying again.
	address, found, err := m.recoverFromChain(ctx, walletAddress, req)
	if err != nil {
		m.setState(walletAddress, StateUnknown)
		return "", fmt.Errorf("check chain for existing proxy: %w", err)
	}
	if found {
		return address, m.persist(ctx, walletAddress, address)
	}

	m.setState(walletAddress, StateDeploying)
	result, err := m.gateway.DeployContract(ctx, req)
	if err != nil {
		m.setState(walletAddress, StateNotDeployed)
		m.metrics.RecordDeploy(false)
		return "", fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}

	if _, err := m.gateway.WaitForConfirmation(ctx, result.TransactionHash); err != nil {
		m.setState(walletAddress, StateNotDeployed)
		m.metrics.RecordDeploy(false)
		return "", fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}

	m.setState(walletAddress, StateDeployed)
	m.metrics.RecordDeploy(true)
	m.logger.Info("Proxy contract deployed",
		zap.String("wallet", walletAddress),
		zap.String("contract", result.ContractAddress),
		zap.String("tx_hash", result.TransactionHash))

	if m.bus != nil {
		_ = m.bus.Publish(events.ContractDeployedEvent{
			BaseEvent:       events.NewBase(events.ContractDeployed),
			WalletAddress:   walletAddress,
			ContractAddress: result.ContractAddress,
			TransactionHash: result.TransactionHash,
		})
	}

	return result.ContractAddress, m.persist(ctx, walletAddress, result.ContractAddress)
}

// recoverFromChain checks whether the proxy already exists on chain at its
// deterministic address even though the ledger has no record of it. A chain
// read failure is returned as an error: deploying while the chain state is
// unknown could create a duplicate.
func (m *Manager) recoverFromChain(ctx context.Context, walletAddress string, req chain.DeployRequest) (string, bool, error) {
	predicted, err := m.gateway.PredictDeploymentAddress(req)
	if err != nil {
		m.logger.Warn("Could not predict deployment address, proceeding to deploy",
			zap.String("wallet", walletAddress),
			zap.Error(err))
		return "", false, nil
	}

	classHash, err := m.gateway.ClassHashAt(ctx, predicted)
	if err != nil {
		return "", false, err
	}
	if classHash == "" || classHash == "0x0" {
		return "", false, nil
	}

	m.logger.Warn("Found proxy on chain without a ledger record, reconciling",
		zap.String("wallet", walletAddress),
		zap.String("contract", predicted),
		zap.String("class_hash", classHash))
	return predicted, true, nil
}

// persist pushes the deployed address to the ledger. A failure here after a
// confirmed deploy is an off-chain/on-chain divergence and is surfaced as
// ErrDeployPersist so callers know the deploy itself succeeded.
func (m *Manager) persist(ctx context.Context, walletAddress, contractAddress string) error {
	if err := m.ledger.UpdateUserContract(ctx, walletAddress, contractAddress); err != nil {
		m.metrics.RecordDivergence()
		m.logger.Error("DIVERGENCE: deployed contract not persisted to ledger",
			zap.String("wallet", walletAddress),
			zap.String("contract", contractAddress),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeployPersist, err)
	}
	m.setState(walletAddress, StateDeployed)
	return nil
}
