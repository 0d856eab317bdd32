// internal/chain/types.go
package chain

// Call describes a single contract invocation: target address, entrypoint
// selector name and the already-flattened calldata felts.
type Call struct {
	ContractAddress string
	Entrypoint      string
	Calldata        []string
}

// Bundle is an ordered set of calls submitted to the wallet as one atomic
// transaction. Either every call in the bundle lands on chain or none does.
type Bundle []Call

// InvokeResult is what the wallet returns right after accepting a bundle.
type InvokeResult struct {
	TransactionHash string
}

// ReceiptStatus mirrors the execution status the chain reports for a
// finished transaction.
type ReceiptStatus string

const (
	StatusPending  ReceiptStatus = "PENDING"
	StatusAccepted ReceiptStatus = "ACCEPTED"
	StatusRejected ReceiptStatus = "REJECTED"
	StatusReverted ReceiptStatus = "REVERTED"
)

// Receipt is the confirmation record for a submitted transaction.
type Receipt struct {
	TransactionHash string
	Status          ReceiptStatus
	BlockNumber     uint64
	RevertReason    string
}

// Accepted reports whether the transaction executed successfully.
func (r *Receipt) Accepted() bool {
	return r != nil && r.Status == StatusAccepted
}

// DeployRequest describes a contract deployment: the declared class to
// instantiate, a caller-chosen salt and constructor calldata. With Unique set
// the resulting address is bound to the deploying account.
type DeployRequest struct {
	ClassHash           string
	Salt                string
	ConstructorCalldata []string
	Unique              bool
}

// DeployResult is returned by the wallet once a deployment is submitted.
type DeployResult struct {
	TransactionHash string
	ContractAddress string
}
