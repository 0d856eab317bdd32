// internal/chain/provider.go
package chain

import "context"

// Account is the signing capability of a connected wallet. Each wallet SDK is
// adapted to this interface outside the core; the orchestration code never
// touches SDK types directly.
type Account interface {
	// Address returns the account address of the connected wallet.
	Address() string

	// Execute submits all calls as one atomic transaction and returns the
	// transaction hash once the wallet has accepted it.
	Execute(ctx context.Context, calls Bundle) (*InvokeResult, error)

	// DeployContract submits a contract deployment through the wallet.
	DeployContract(ctx context.Context, req DeployRequest) (*DeployResult, error)

	// AddressForDeployment predicts the address a deployment request would
	// produce without submitting anything. Deployment addresses are
	// deterministic, so the prediction holds across sessions.
	AddressForDeployment(req DeployRequest) (string, error)
}

// Provider is the read-only chain access capability.
type Provider interface {
	// CallContract performs a read-only entrypoint call.
	CallContract(ctx context.Context, call Call) ([]string, error)

	// TransactionReceipt fetches the receipt for a transaction, or an error
	// if the chain does not know the hash yet.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// ClassHashAt returns the class hash of the contract deployed at the
	// given address, or an empty string when nothing is deployed there.
	ClassHashAt(ctx context.Context, contractAddress string) (string, error)
}

// Connector opens a wallet session with one underlying wallet SDK.
type Connector interface {
	ID() string
	Connect(ctx context.Context) (Account, error)
}
