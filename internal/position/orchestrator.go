// internal/position/orchestrator.go
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/starkloop/starkloop/internal/backend"
	"github.com/starkloop/starkloop/internal/chain"
	"github.com/starkloop/starkloop/internal/config"
	"github.com/starkloop/starkloop/internal/events"
	"github.com/starkloop/starkloop/internal/logger"
	"github.com/starkloop/starkloop/internal/metrics"
)

// Operation names used in logs, events and metrics.
const (
	OpOpenPosition = "open_position"
	OpAddDeposit   = "add_deposit"
	OpClose        = "close_position"
	OpWithdrawAll  = "withdraw_all"
)

const activationMaxTries = 3

// Ledger is the slice of the backend client the orchestrator needs.
type Ledger interface {
	CreatePosition(ctx context.Context, walletID, tokenSymbol string, amount, multiplier float64) (*backend.OpenPositionData, error)
	OpenPosition(ctx context.Context, positionID backend.PositionID, txHash string) error
	ClosePosition(ctx context.Context, positionID backend.PositionID, txHash string) error
	CheckPosition(ctx context.Context, walletID string) (*backend.PositionCheck, error)
	GetRepayData(ctx context.Context, walletID string) (*backend.RepayData, error)
	AddExtraDeposit(ctx context.Context, req backend.ExtraDepositRequest) error
	GetMultipliers(ctx context.Context) (map[string]float64, error)
}

// WalletGateway is the slice of the wallet gateway the orchestrator needs.
type WalletGateway interface {
	Address() (string, error)
	ExecuteBundle(ctx context.Context, calls chain.Bundle) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string) (*chain.Receipt, error)
}

// Deployer guarantees the per-wallet proxy contract exists.
type Deployer interface {
	EnsureDeployed(ctx context.Context, walletAddress string) (string, error)
}

// Orchestrator coordinates a position lifecycle operation across the three
// independently-failing collaborators: wallet/chain, ledger and local state.
// Every operation returns a uniform TransactionResult; no error propagates
// past this boundary.
type Orchestrator struct {
	gateway  WalletGateway
	ledger   Ledger
	deployer Deployer
	bus      *events.Bus
	metrics  *metrics.Collector
	logger   *logger.Logger
	tokens   map[string]config.Token

	mu       sync.Mutex
	inflight map[string]*semaphore.Weighted

	boundsMu sync.RWMutex
	bounds   map[string]float64
}

// NewOrchestrator wires the lifecycle coordinator.
func NewOrchestrator(gateway WalletGateway, ledger Ledger, deployer Deployer, tokens map[string]config.Token, bus *events.Bus, collector *metrics.Collector, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		gateway:  gateway,
		ledger:   ledger,
		deployer: deployer,
		bus:      bus,
		metrics:  collector,
		logger:   logger.Wrap(log.Named("position-orchestrator")),
		tokens:   tokens,
		inflight: make(map[string]*semaphore.Weighted),
		bounds:   make(map[string]float64),
	}
}

// RefreshMultipliers fetches the platform's per-token multiplier ceilings.
// Called by the embedding client outside the operation flows so that intent
// validation itself stays network-free.
func (o *Orchestrator) RefreshMultipliers(ctx context.Context) error {
	bounds, err := o.ledger.GetMultipliers(ctx)
	if err != nil {
		return fmt.Errorf("fetch multipliers: %w", err)
	}
	o.boundsMu.Lock()
	o.bounds = bounds
	o.boundsMu.Unlock()
	o.logger.Debug("Multiplier bounds refreshed", zap.Int("tokens", len(bounds)))
	return nil
}

func (o *Orchestrator) multiplierBounds() map[string]float64 {
	o.boundsMu.RLock()
	defer o.boundsMu.RUnlock()
	copied := make(map[string]float64, len(o.bounds))
	for k, v := range o.bounds {
		copied[k] = v
	}
	return copied
}

// acquireWallet takes the per-wallet mutual-exclusion flag. Two concurrent
// intents for one wallet would race the deploy check and could double-deploy,
// so the second intent is refused outright. A freed entry is pruned so the
// map stays bounded by the number of wallets with an operation in flight.
func (o *Orchestrator) acquireWallet(walletAddress string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sem, ok := o.inflight[walletAddress]
	if !ok {
		sem = semaphore.NewWeighted(1)
		o.inflight[walletAddress] = sem
	}
	if !sem.TryAcquire(1) {
		return nil, ErrWalletBusy
	}
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		sem.Release(1)
		if sem.TryAcquire(1) {
			delete(o.inflight, walletAddress)
			sem.Release(1)
		}
	}, nil
}

// OpenPosition runs the full open flow: validate, ensure proxy, materialize
// the intent on the ledger, submit the approve+loop_liquidity bundle, await
// confirmation and activate the ledger record. Ledger record creation always
// happens before wallet submission, and confirmation always happens before
// activation.
func (o *Orchestrator) OpenPosition(ctx context.Context, intent Intent) *TransactionResult {
	start := time.Now()
	log := o.logger.WithOperation(OpOpenPosition).With(
		zap.String("wallet", intent.WalletAddress),
		zap.String("token", intent.TokenSymbol))

	validated, err := intent.validate(o.tokens, o.multiplierBounds())
	if err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, "", start, err, log)
	}

	release, err := o.acquireWallet(intent.WalletAddress)
	if err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, "", start, err, log)
	}
	defer release()

	o.publishStarted(OpOpenPosition, intent.WalletAddress, intent.TokenSymbol)

	contractAddress, err := o.deployer.EnsureDeployed(ctx, intent.WalletAddress)
	if err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, "", start, err, log)
	}

	// Materialized exactly once: a failure anywhere past this point must not
	// re-run create-position, or the ledger accumulates duplicate records.
	data, err := o.ledger.CreatePosition(ctx, intent.WalletAddress, intent.TokenSymbol, validated.amount, validated.multiplier)
	if err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, "", start, err, log)
	}
	if data.ContractAddress != "" {
		contractAddress = data.ContractAddress
	}
	log = log.With(zap.String("position_id", data.PositionID.String()))

	bundle, err := BuildOpenPosition(data.PoolKey, data.DepositData, contractAddress)
	if err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, "", start, err, log)
	}

	txHash, err := o.gateway.ExecuteBundle(ctx, bundle)
	if err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, "", start, err, log)
	}
	log = log.With(zap.String("tx_hash", txHash))

	if _, err := o.gateway.WaitForConfirmation(ctx, txHash); err != nil {
		return o.fail(OpOpenPosition, intent.WalletAddress, txHash, start, err, log)
	}

	if err := o.activate(ctx, data.PositionID, txHash); err != nil {
		o.recordDivergence(log, "open-position activation failed after confirmed transaction", err)
		return o.fail(OpOpenPosition, intent.WalletAddress, txHash, start, err, log)
	}

	o.metrics.RecordOperation(OpOpenPosition, start, true)
	log.Info("Position opened")
	o.publish(events.PositionOpenedEvent{
		BaseEvent:       events.NewBase(events.PositionOpened),
		WalletAddress:   intent.WalletAddress,
		PositionID:      data.PositionID.String(),
		TokenSymbol:     intent.TokenSymbol,
		Amount:          intent.Amount,
		TransactionHash: txHash,
	})

	return &TransactionResult{TransactionHash: txHash, Success: true}
}

// AddDeposit adds funds to an existing open position.
func (o *Orchestrator) AddDeposit(ctx context.Context, intent DepositIntent) *TransactionResult {
	start := time.Now()
	log := o.logger.WithOperation(OpAddDeposit).With(
		zap.String("wallet", intent.WalletAddress),
		zap.String("position_id", intent.PositionID))

	token, amount, err := intent.validate(o.tokens)
	if err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, "", start, err, log)
	}

	release, err := o.acquireWallet(intent.WalletAddress)
	if err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, "", start, err, log)
	}
	defer release()

	o.publishStarted(OpAddDeposit, intent.WalletAddress, intent.TokenSymbol)

	contractAddress, err := o.deployer.EnsureDeployed(ctx, intent.WalletAddress)
	if err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, "", start, err, log)
	}

	raw, err := rawAmount(intent.Amount, token.Decimals)
	if err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, "", start, err, log)
	}
	bundle, err := BuildExtraDeposit(token.Address, raw, contractAddress)
	if err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, "", start, err, log)
	}

	txHash, err := o.gateway.ExecuteBundle(ctx, bundle)
	if err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, "", start, err, log)
	}
	log = log.With(zap.String("tx_hash", txHash))

	if _, err := o.gateway.WaitForConfirmation(ctx, txHash); err != nil {
		return o.fail(OpAddDeposit, intent.WalletAddress, txHash, start, err, log)
	}

	if err := o.ledger.AddExtraDeposit(ctx, backend.ExtraDepositRequest{
		PositionID:  backend.PositionID(intent.PositionID),
		Amount:      amount,
		TokenSymbol: intent.TokenSymbol,
	}); err != nil {
		o.recordDivergence(log, "extra deposit not recorded after confirmed transaction", err)
		return o.fail(OpAddDeposit, intent.WalletAddress, txHash, start, err, log)
	}

	o.metrics.RecordOperation(OpAddDeposit, start, true)
	log.Info("Extra deposit added")
	o.publish(events.DepositAddedEvent{
		BaseEvent:       events.NewBase(events.DepositAdded),
		WalletAddress:   intent.WalletAddress,
		PositionID:      intent.PositionID,
		TokenSymbol:     intent.TokenSymbol,
		TransactionHash: txHash,
	})

	return &TransactionResult{TransactionHash: txHash, Success: true}
}

// ClosePosition closes the wallet's open position. The open-position check is
// re-done here even though the UI checks first: the position may have closed
// between the caller's check and this call.
func (o *Orchestrator) ClosePosition(ctx context.Context, walletAddress string) *TransactionResult {
	return o.closeFlow(ctx, OpClose, walletAddress, nil)
}

// WithdrawAll closes the wallet's open position and withdraws every token in
// the given order.
func (o *Orchestrator) WithdrawAll(ctx context.Context, walletAddress string, tokens []string) *TransactionResult {
	return o.closeFlow(ctx, OpWithdrawAll, walletAddress, tokens)
}

func (o *Orchestrator) closeFlow(ctx context.Context, operation, walletAddress string, withdrawTokens []string) *TransactionResult {
	start := time.Now()
	log := o.logger.WithOperation(operation).With(
		zap.String("wallet", walletAddress))

	if walletAddress == "" {
		return o.fail(operation, walletAddress, "", start,
			fmt.Errorf("%w: missing wallet address", ErrInvalidIntent), log)
	}

	release, err := o.acquireWallet(walletAddress)
	if err != nil {
		return o.fail(operation, walletAddress, "", start, err, log)
	}
	defer release()

	o.publishStarted(operation, walletAddress, "")

	check, err := o.ledger.CheckPosition(ctx, walletAddress)
	if err != nil {
		return o.fail(operation, walletAddress, "", start, err, log)
	}
	if !check.HasOpenedPosition {
		return o.fail(operation, walletAddress, "", start, ErrNoOpenPosition, log)
	}

	repay, err := o.ledger.GetRepayData(ctx, walletAddress)
	if err != nil {
		return o.fail(operation, walletAddress, "", start, err, log)
	}
	log = log.With(zap.String("position_id", repay.PositionID.String()))

	var bundle chain.Bundle
	if operation == OpWithdrawAll {
		bundle, err = BuildWithdrawAll(repay.ContractAddress, *repay, withdrawTokens)
	} else {
		bundle, err = BuildClosePosition(repay.ContractAddress, *repay)
	}
	if err != nil {
		return o.fail(operation, walletAddress, "", start, err, log)
	}

	txHash, err := o.gateway.ExecuteBundle(ctx, bundle)
	if err != nil {
		return o.fail(operation, walletAddress, "", start, err, log)
	}
	log = log.With(zap.String("tx_hash", txHash))

	if _, err := o.gateway.WaitForConfirmation(ctx, txHash); err != nil {
		return o.fail(operation, walletAddress, txHash, start, err, log)
	}

	if err := o.acknowledgeClose(ctx, repay.PositionID, txHash); err != nil {
		o.recordDivergence(log, "close not recorded after confirmed transaction", err)
		return o.fail(operation, walletAddress, txHash, start, err, log)
	}

	o.metrics.RecordOperation(operation, start, true)
	log.Info("Position closed")

	if operation == OpWithdrawAll {
		o.publish(events.FundsWithdrawnEvent{
			BaseEvent:       events.NewBase(events.FundsWithdrawn),
			WalletAddress:   walletAddress,
			Tokens:          withdrawTokens,
			TransactionHash: txHash,
		})
	} else {
		o.publish(events.PositionClosedEvent{
			BaseEvent:       events.NewBase(events.PositionClosed),
			WalletAddress:   walletAddress,
			PositionID:      repay.PositionID.String(),
			TransactionHash: txHash,
		})
	}

	return &TransactionResult{TransactionHash: txHash, Success: true}
}

// activate transitions the ledger record to Open. The endpoint is idempotent
// for a fixed (position, hash) pair, so transient failures are retried with
// backoff; client errors are not.
func (o *Orchestrator) activate(ctx context.Context, positionID backend.PositionID, txHash string) error {
	operation := func() (struct{}, error) {
		if err := o.ledger.OpenPosition(ctx, positionID, txHash); err != nil {
			if apiErr, ok := backend.IsAPIError(err); ok && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(activationMaxTries))
	return err
}

// acknowledgeClose mirrors activate for the close transition.
func (o *Orchestrator) acknowledgeClose(ctx context.Context, positionID backend.PositionID, txHash string) error {
	operation := func() (struct{}, error) {
		if err := o.ledger.ClosePosition(ctx, positionID, txHash); err != nil {
			if apiErr, ok := backend.IsAPIError(err); ok && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(activationMaxTries))
	return err
}

// recordDivergence flags the most dangerous failure class: the chain holds a
// confirmed transaction the ledger refused to record.
func (o *Orchestrator) recordDivergence(log *zap.Logger, msg string, err error) {
	o.metrics.RecordDivergence()
	log.Error("DIVERGENCE: "+msg, zap.Error(err))
}

func (o *Orchestrator) fail(operation, walletAddress, txHash string, start time.Time, err error, log *zap.Logger) *TransactionResult {
	kind := Classify(err)
	log.Error("Operation failed",
		zap.String("error_kind", string(kind)),
		zap.Error(err))
	o.metrics.RecordOperation(operation, start, false)
	o.publish(events.OperationFailedEvent{
		BaseEvent:     events.NewBase(events.OperationFailed),
		Operation:     operation,
		WalletAddress: walletAddress,
		ErrorKind:     string(kind),
		Message:       err.Error(),
	})
	return &TransactionResult{
		TransactionHash: txHash,
		Success:         false,
		ErrorKind:       kind,
		Message:         err.Error(),
	}
}

func (o *Orchestrator) publishStarted(operation, walletAddress, tokenSymbol string) {
	o.publish(events.OperationStartedEvent{
		BaseEvent:     events.NewBase(events.OperationStarted),
		Operation:     operation,
		WalletAddress: walletAddress,
		TokenSymbol:   tokenSymbol,
	})
}

func (o *Orchestrator) publish(event events.Event) {
	if o.bus == nil {
		return
	}
	_ = o.bus.Publish(event)
}
