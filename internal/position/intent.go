// internal/position/intent.go
package position

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/starkloop/starkloop/internal/config"
)

// Intent is a user request to open a leveraged position: form values, not
// yet materialized into backend or chain state.
type Intent struct {
	WalletAddress string
	TokenSymbol   string
	Amount        string
	Multiplier    string
}

// DepositIntent is a user request to add funds to an open position.
type DepositIntent struct {
	WalletAddress string
	PositionID    string
	TokenSymbol   string
	Amount        string
}

// TransactionResult is the terminal value every lifecycle operation returns.
type TransactionResult struct {
	TransactionHash string
	Success         bool
	ErrorKind       ErrorKind
	Message         string
}

// DefaultMaxMultiplier bounds the multiplier when the platform has not
// reported a per-token ceiling yet.
const DefaultMaxMultiplier = 5.0

type validatedIntent struct {
	Intent
	amount     float64
	multiplier float64
	token      config.Token
}

// validate checks the intent locally, before any network call. Multiplier
// bounds come from the platform (cached by the orchestrator).
func (i Intent) validate(tokens map[string]config.Token, bounds map[string]float64) (*validatedIntent, error) {
	if i.WalletAddress == "" {
		return nil, fmt.Errorf("%w: missing wallet address", ErrInvalidIntent)
	}

	token, ok := tokens[i.TokenSymbol]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported token %q", ErrInvalidIntent, i.TokenSymbol)
	}

	amount, err := strconv.ParseFloat(i.Amount, 64)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be a positive number, got %q", ErrInvalidIntent, i.Amount)
	}

	multiplier, err := strconv.ParseFloat(i.Multiplier, 64)
	if err != nil || multiplier <= 1 {
		return nil, fmt.Errorf("%w: multiplier must be greater than 1, got %q", ErrInvalidIntent, i.Multiplier)
	}
	maxMultiplier := DefaultMaxMultiplier
	if bound, ok := bounds[i.TokenSymbol]; ok && bound > 0 {
		maxMultiplier = bound
	}
	if multiplier > maxMultiplier {
		return nil, fmt.Errorf("%w: multiplier %.2f exceeds the %s ceiling of %.2f",
			ErrInvalidIntent, multiplier, i.TokenSymbol, maxMultiplier)
	}

	return &validatedIntent{
		Intent:     i,
		amount:     amount,
		multiplier: multiplier,
		token:      token,
	}, nil
}

// validateDeposit checks an extra-deposit intent locally.
func (i DepositIntent) validate(tokens map[string]config.Token) (config.Token, float64, error) {
	if i.WalletAddress == "" {
		return config.Token{}, 0, fmt.Errorf("%w: missing wallet address", ErrInvalidIntent)
	}
	if i.PositionID == "" {
		return config.Token{}, 0, fmt.Errorf("%w: missing position id", ErrInvalidIntent)
	}
	token, ok := tokens[i.TokenSymbol]
	if !ok {
		return config.Token{}, 0, fmt.Errorf("%w: unsupported token %q", ErrInvalidIntent, i.TokenSymbol)
	}
	amount, err := strconv.ParseFloat(i.Amount, 64)
	if err != nil || amount <= 0 {
		return config.Token{}, 0, fmt.Errorf("%w: amount must be a positive number, got %q", ErrInvalidIntent, i.Amount)
	}
	return token, amount, nil
}

// rawAmount converts a human token amount into on-chain base units.
func rawAmount(amount string, decimals int) (string, error) {
	value, ok := new(big.Float).SetString(amount)
	if !ok || value.Sign() < 0 {
		return "", fmt.Errorf("%w: bad amount %q", ErrInvalidIntent, amount)
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, scale)
	raw, _ := value.Int(nil)
	return raw.String(), nil
}
