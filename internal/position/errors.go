// internal/position/errors.go
package position

import (
	"context"
	"errors"

	"github.com/starkloop/starkloop/internal/backend"
	"github.com/starkloop/starkloop/internal/chain"
	"github.com/starkloop/starkloop/internal/deploy"
)

var (
	// ErrInvalidIntent means a bundle builder was handed incomplete data.
	ErrInvalidIntent = errors.New("invalid intent data")

	// ErrNoOpenPosition means a close or withdraw was requested while the
	// ledger reports no open position for the wallet.
	ErrNoOpenPosition = errors.New("no open position for wallet")

	// ErrWalletBusy means another operation for the same wallet is still in
	// flight. The caller retries after the first operation settles.
	ErrWalletBusy = errors.New("another operation is in flight for this wallet")
)

// ErrorKind is the uniform failure classification surfaced to callers.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindValidation          ErrorKind = "validation_error"
	KindNotConnected        ErrorKind = "not_connected"
	KindConnection          ErrorKind = "connection_error"
	KindDeploymentFailed    ErrorKind = "deployment_failed"
	KindDeploymentPersist   ErrorKind = "deployment_persist_error"
	KindUserRejected        ErrorKind = "user_rejected"
	KindSubmission          ErrorKind = "submission_error"
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"
	KindBackend             ErrorKind = "backend_error"
	KindNoOpenPosition      ErrorKind = "no_open_position"
	KindWalletBusy          ErrorKind = "wallet_busy"
	KindCanceled            ErrorKind = "canceled"
	KindInternal            ErrorKind = "internal_error"
)

// Classify maps any error raised inside a lifecycle flow onto the uniform
// taxonomy. Nothing escapes unclassified.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidIntent):
		return KindValidation
	case errors.Is(err, ErrNoOpenPosition):
		return KindNoOpenPosition
	case errors.Is(err, ErrWalletBusy):
		return KindWalletBusy
	case errors.Is(err, chain.ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, chain.ErrConnection):
		return KindConnection
	case errors.Is(err, chain.ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, chain.ErrConfirmationTimeout):
		return KindConfirmationTimeout
	case errors.Is(err, deploy.ErrDeployPersist):
		return KindDeploymentPersist
	case errors.Is(err, deploy.ErrDeployFailed):
		return KindDeploymentFailed
	case errors.Is(err, chain.ErrSubmission):
		return KindSubmission
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		if _, ok := backend.IsAPIError(err); ok {
			return KindBackend
		}
		return KindInternal
	}
}
