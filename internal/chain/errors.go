// internal/chain/errors.go
package chain

import (
	"errors"
	"strings"
)

var (
	ErrNotConnected        = errors.New("wallet not connected")
	ErrConnection          = errors.New("wallet connection failed")
	ErrUserRejected        = errors.New("transaction rejected by user")
	ErrSubmission          = errors.New("transaction submission failed")
	ErrRead                = errors.New("contract read failed")
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")
)

// IsUserRejection reports whether an error coming out of a wallet SDK means
// the user dismissed the signing prompt. SDKs disagree on the exact wording,
// so this is a best-effort match on top of the sentinel.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user reject") ||
		strings.Contains(msg, "user abort") ||
		strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "aborted by user")
}
