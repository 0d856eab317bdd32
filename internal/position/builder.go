// internal/position/builder.go
package position

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/starkloop/starkloop/internal/backend"
	"github.com/starkloop/starkloop/internal/chain"
)

// Proxy contract entrypoints.
const (
	EntrypointApprove       = "approve"
	EntrypointLoopLiquidity = "loop_liquidity"
	EntrypointExtraDeposit  = "extra_deposit"
	EntrypointClosePosition = "close_position"
	EntrypointWithdraw      = "withdraw"
)

// BuildOpenPosition assembles the open-position bundle: an ERC-20 approval
// followed by the loop_liquidity invocation. The approval always precedes
// the call that consumes the allowance, inside the same atomic bundle, so a
// dangling allowance can never survive on its own.
func BuildOpenPosition(poolKey backend.PoolKey, deposit backend.DepositData, contractAddress string) (chain.Bundle, error) {
	if contractAddress == "" {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidIntent)
	}
	if poolKey.Empty() {
		return nil, fmt.Errorf("%w: missing pool_key", ErrInvalidIntent)
	}
	if deposit.Token == "" || deposit.Amount == "" {
		return nil, fmt.Errorf("%w: missing deposit_data fields", ErrInvalidIntent)
	}

	approve, err := approveCall(deposit.Token, contractAddress, deposit.Amount)
	if err != nil {
		return nil, err
	}

	calldata := poolKey.Flatten()
	depositCalldata, err := flattenDeposit(deposit)
	if err != nil {
		return nil, err
	}
	calldata = append(calldata, depositCalldata...)

	return chain.Bundle{
		approve,
		{
			ContractAddress: contractAddress,
			Entrypoint:      EntrypointLoopLiquidity,
			Calldata:        calldata,
		},
	}, nil
}

// BuildExtraDeposit assembles the add-deposit bundle: approval then
// extra_deposit.
func BuildExtraDeposit(tokenAddress, amount, contractAddress string) (chain.Bundle, error) {
	if contractAddress == "" {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidIntent)
	}
	if tokenAddress == "" || amount == "" {
		return nil, fmt.Errorf("%w: missing token or amount", ErrInvalidIntent)
	}

	approve, err := approveCall(tokenAddress, contractAddress, amount)
	if err != nil {
		return nil, err
	}
	low, high, err := u256Parts(amount)
	if err != nil {
		return nil, err
	}

	return chain.Bundle{
		approve,
		{
			ContractAddress: contractAddress,
			Entrypoint:      EntrypointExtraDeposit,
			Calldata:        []string{tokenAddress, low, high},
		},
	}, nil
}

// BuildClosePosition assembles the single-call close bundle.
func BuildClosePosition(contractAddress string, repay backend.RepayData) (chain.Bundle, error) {
	if contractAddress == "" {
		return nil, fmt.Errorf("%w: missing contract address", ErrInvalidIntent)
	}
	if repay.SupplyToken == "" || repay.DebtToken == "" {
		return nil, fmt.Errorf("%w: missing repay_data fields", ErrInvalidIntent)
	}

	return chain.Bundle{
		{
			ContractAddress: contractAddress,
			Entrypoint:      EntrypointClosePosition,
			Calldata:        repay.Flatten(),
		},
	}, nil
}

// BuildWithdrawAll assembles close_position followed by one zero-amount
// withdraw per token. Withdrawals must follow the close and the caller's
// token order is preserved.
func BuildWithdrawAll(contractAddress string, repay backend.RepayData, tokens []string) (chain.Bundle, error) {
	bundle, err := BuildClosePosition(contractAddress, repay)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens to withdraw", ErrInvalidIntent)
	}

	for _, token := range tokens {
		if token == "" {
			return nil, fmt.Errorf("%w: empty token address in withdraw list", ErrInvalidIntent)
		}
		bundle = append(bundle, chain.Call{
			ContractAddress: contractAddress,
			Entrypoint:      EntrypointWithdraw,
			Calldata:        []string{token, "0", "0"},
		})
	}
	return bundle, nil
}

func approveCall(token, spender, amount string) (chain.Call, error) {
	low, high, err := u256Parts(amount)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{
		ContractAddress: token,
		Entrypoint:      EntrypointApprove,
		Calldata:        []string{spender, low, high},
	}, nil
}

func flattenDeposit(deposit backend.DepositData) ([]string, error) {
	low, high, err := u256Parts(deposit.Amount)
	if err != nil {
		return nil, err
	}
	calldata := []string{deposit.Token, low, high}
	if deposit.Multiplier != "" {
		calldata = append(calldata, deposit.Multiplier)
	}
	return calldata, nil
}

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// u256Parts splits an amount into the (low, high) 128-bit halves the chain
// expects for uint256 arguments. Accepts decimal or 0x-hex input.
func u256Parts(amount string) (string, string, error) {
	base := 10
	digits := amount
	if strings.HasPrefix(amount, "0x") || strings.HasPrefix(amount, "0X") {
		base = 16
		digits = amount[2:]
	}
	value, ok := new(big.Int).SetString(digits, base)
	if !ok || value.Sign() < 0 {
		return "", "", fmt.Errorf("%w: bad amount %q", ErrInvalidIntent, amount)
	}
	low := new(big.Int).And(value, maxU128)
	high := new(big.Int).Rsh(value, 128)
	return low.String(), high.String(), nil
}
