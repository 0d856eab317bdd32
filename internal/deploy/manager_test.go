// internal/deploy/manager_test.go
package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/starkloop/starkloop/internal/backend"
	"github.com/starkloop/starkloop/internal/chain"
	"github.com/starkloop/starkloop/internal/metrics"
)

const (
	testWallet    = "0xA"
	testClassHash = "0xproxyclass"
	testPredicted = "0xpredicted"
	testDeployed  = "0xdeployed"
)

// gatewayMock simulates the wallet/chain side. The onChainClass field stands
// in for actual chain state: ClassHashAt returns it for the predicted
// address, and a successful deploy sets it.
type gatewayMock struct {
	deployCalls  int
	deployErr    error
	confirmErr   error
	predictErr   error
	classErr     error
	onChainClass string
	lastReq      chain.DeployRequest
}

func (g *gatewayMock) DeployContract(_ context.Context, req chain.DeployRequest) (*chain.DeployResult, error) {
	g.deployCalls++
	g.lastReq = req
	if g.deployErr != nil {
		return nil, g.deployErr
	}
	g.onChainClass = req.ClassHash
	return &chain.DeployResult{TransactionHash: "0xH", ContractAddress: testDeployed}, nil
}

func (g *gatewayMock) PredictDeploymentAddress(req chain.DeployRequest) (string, error) {
	if g.predictErr != nil {
		return "", g.predictErr
	}
	return testPredicted, nil
}

func (g *gatewayMock) WaitForConfirmation(_ context.Context, txHash string) (*chain.Receipt, error) {
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &chain.Receipt{TransactionHash: txHash, Status: chain.StatusAccepted}, nil
}

func (g *gatewayMock) ClassHashAt(_ context.Context, contractAddress string) (string, error) {
	if g.classErr != nil {
		return "", g.classErr
	}
	return g.onChainClass, nil
}

// ledgerMock holds the deployment record and flips it when a contract
// address is persisted, the way the real backend does.
type ledgerMock struct {
	record     backend.DeploymentRecord
	persistErr error
	persisted  []string
}

func (l *ledgerMock) CheckUser(_ context.Context, walletID string) (*backend.DeploymentRecord, error) {
	r := l.record
	return &r, nil
}

func (l *ledgerMock) UpdateUserContract(_ context.Context, walletID, contractAddress string) error {
	if l.persistErr != nil {
		return l.persistErr
	}
	l.persisted = append(l.persisted, contractAddress)
	l.record.IsContractDeployed = true
	l.record.ContractAddress = contractAddress
	return nil
}

func newTestManager(t *testing.T, gateway *gatewayMock, ledger *ledgerMock) *Manager {
	t.Helper()
	return NewManager(gateway, ledger, testClassHash, nil, metrics.NewCollector(), zaptest.NewLogger(t))
}

func TestEnsureDeployed_AlreadyRecorded(t *testing.T) {
	gateway := &gatewayMock{}
	ledger := &ledgerMock{record: backend.DeploymentRecord{
		WalletID:           testWallet,
		IsContractDeployed: true,
		ContractAddress:    testDeployed,
	}}
	m := newTestManager(t, gateway, ledger)

	address, err := m.EnsureDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testDeployed, address)
	assert.Equal(t, StateDeployed, m.State(testWallet))

	// No wallet interaction at all for an already-deployed wallet.
	assert.Zero(t, gateway.deployCalls)
}

func TestEnsureDeployed_DeploysExactlyOnce(t *testing.T) {
	gateway := &gatewayMock{}
	ledger := &ledgerMock{record: backend.DeploymentRecord{WalletID: testWallet}}
	m := newTestManager(t, gateway, ledger)

	address, err := m.EnsureDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testDeployed, address)
	assert.Equal(t, 1, gateway.deployCalls)
	assert.Equal(t, []string{testDeployed}, ledger.persisted)
	assert.Equal(t, StateDeployed, m.State(testWallet))

	// Salt is the wallet address so the contract address is deterministic.
	assert.Equal(t, testWallet, gateway.lastReq.Salt)
	assert.Equal(t, testClassHash, gateway.lastReq.ClassHash)
	assert.Equal(t, []string{testWallet}, gateway.lastReq.ConstructorCalldata)
	assert.True(t, gateway.lastReq.Unique)

	// Second call reads the persisted record, never touches the wallet again.
	address, err = m.EnsureDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testDeployed, address)
	assert.Equal(t, 1, gateway.deployCalls)
}

func TestEnsureDeployed_RecoversFromChain(t *testing.T) {
	// Ledger has no record but the proxy is already live at its deterministic
	// address: a previous run deployed and failed to persist.
	gateway := &gatewayMock{onChainClass: testClassHash}
	ledger := &ledgerMock{record: backend.DeploymentRecord{WalletID: testWallet}}
	m := newTestManager(t, gateway, ledger)

	address, err := m.EnsureDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testPredicted, address)
	assert.Zero(t, gateway.deployCalls, "must not deploy a second proxy")
	assert.Equal(t, []string{testPredicted}, ledger.persisted)
}

func TestEnsureDeployed_PersistFailureThenRecovery(t *testing.T) {
	gateway := &gatewayMock{}
	ledger := &ledgerMock{
		record:     backend.DeploymentRecord{WalletID: testWallet},
		persistErr: errors.New("backend down"),
	}
	m := newTestManager(t, gateway, ledger)

	address, err := m.EnsureDeployed(context.Background(), testWallet)
	require.ErrorIs(t, err, ErrDeployPersist)
	// The deploy itself succeeded; the address is still usable this session.
	assert.Equal(t, testDeployed, address)
	assert.Equal(t, 1, gateway.deployCalls)

	// Backend comes back. The next call finds the proxy on chain and only
	// retries the ledger write.
	ledger.persistErr = nil
	address, err = m.EnsureDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testPredicted, address)
	assert.Equal(t, 1, gateway.deployCalls, "must not deploy a second proxy")
	assert.Equal(t, []string{testPredicted}, ledger.persisted)
}

func TestEnsureDeployed_ChainReadFailure(t *testing.T) {
	// If the chain cannot be asked whether the proxy already exists, deploying
	// anyway could create a duplicate. The attempt must fail instead.
	gateway := &gatewayMock{classErr: errors.New("rpc unavailable")}
	ledger := &ledgerMock{record: backend.DeploymentRecord{WalletID: testWallet}}
	m := newTestManager(t, gateway, ledger)

	_, err := m.EnsureDeployed(context.Background(), testWallet)
	require.Error(t, err)
	assert.Zero(t, gateway.deployCalls, "must not deploy with unknown chain state")
	assert.Empty(t, ledger.persisted)
	assert.Equal(t, StateUnknown, m.State(testWallet))

	// Once the chain answers again the normal deploy path proceeds.
	gateway.classErr = nil
	address, err := m.EnsureDeployed(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, testDeployed, address)
	assert.Equal(t, 1, gateway.deployCalls)
}

func TestEnsureDeployed_WalletFailure(t *testing.T) {
	gateway := &gatewayMock{deployErr: errors.New("wallet unavailable")}
	ledger := &ledgerMock{record: backend.DeploymentRecord{WalletID: testWallet}}
	m := newTestManager(t, gateway, ledger)

	_, err := m.EnsureDeployed(context.Background(), testWallet)
	require.ErrorIs(t, err, ErrDeployFailed)
	assert.Equal(t, StateNotDeployed, m.State(testWallet))
	assert.Empty(t, ledger.persisted)
}

func TestEnsureDeployed_ConfirmationFailure(t *testing.T) {
	gateway := &gatewayMock{confirmErr: chain.ErrConfirmationTimeout}
	ledger := &ledgerMock{record: backend.DeploymentRecord{WalletID: testWallet}}
	m := newTestManager(t, gateway, ledger)

	_, err := m.EnsureDeployed(context.Background(), testWallet)
	require.ErrorIs(t, err, ErrDeployFailed)
	assert.Equal(t, StateNotDeployed, m.State(testWallet))
	assert.Empty(t, ledger.persisted)
}
