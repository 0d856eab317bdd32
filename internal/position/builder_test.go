// internal/position/builder_test.go
package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkloop/starkloop/internal/backend"
)

const testContract = "0x00000000000000000000000000000000000000000000000000000000000c0de"

func testPoolKey() backend.PoolKey {
	return backend.PoolKey{
		Token0:      "0x1",
		Token1:      "0x2",
		Fee:         "0x20c49ba5e353f80000000000000000",
		TickSpacing: "1000",
		Extension:   "0x0",
	}
}

func TestBuildOpenPosition(t *testing.T) {
	deposit := backend.DepositData{
		Token:      "0x1",
		Amount:     "1500000000000000000",
		Multiplier: "2",
	}

	bundle, err := BuildOpenPosition(testPoolKey(), deposit, testContract)
	require.NoError(t, err)
	require.Len(t, bundle, 2)

	// Approval comes first and grants the proxy exactly the deposit amount.
	assert.Equal(t, deposit.Token, bundle[0].ContractAddress)
	assert.Equal(t, EntrypointApprove, bundle[0].Entrypoint)
	assert.Equal(t, []string{testContract, "1500000000000000000", "0"}, bundle[0].Calldata)

	assert.Equal(t, testContract, bundle[1].ContractAddress)
	assert.Equal(t, EntrypointLoopLiquidity, bundle[1].Entrypoint)
	assert.Equal(t, []string{
		"0x1", "0x2", "0x20c49ba5e353f80000000000000000", "1000", "0x0",
		"0x1", "1500000000000000000", "0", "2",
	}, bundle[1].Calldata)
}

func TestBuildOpenPosition_MissingFields(t *testing.T) {
	deposit := backend.DepositData{Token: "0x1", Amount: "10"}

	_, err := BuildOpenPosition(testPoolKey(), deposit, "")
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = BuildOpenPosition(backend.PoolKey{}, deposit, testContract)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = BuildOpenPosition(testPoolKey(), backend.DepositData{Token: "0x1"}, testContract)
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestBuildExtraDeposit(t *testing.T) {
	bundle, err := BuildExtraDeposit("0x1", "250000", testContract)
	require.NoError(t, err)
	require.Len(t, bundle, 2)

	assert.Equal(t, "0x1", bundle[0].ContractAddress)
	assert.Equal(t, EntrypointApprove, bundle[0].Entrypoint)
	assert.Equal(t, []string{testContract, "250000", "0"}, bundle[0].Calldata)

	assert.Equal(t, testContract, bundle[1].ContractAddress)
	assert.Equal(t, EntrypointExtraDeposit, bundle[1].Entrypoint)
	assert.Equal(t, []string{"0x1", "250000", "0"}, bundle[1].Calldata)
}

func TestBuildClosePosition(t *testing.T) {
	repay := backend.RepayData{
		SupplyToken:     "0x1",
		DebtToken:       "0x2",
		PoolKey:         testPoolKey(),
		SupplyPrice:     "100",
		DebtPrice:       "200",
		ContractAddress: testContract,
	}

	bundle, err := BuildClosePosition(testContract, repay)
	require.NoError(t, err)
	require.Len(t, bundle, 1)

	assert.Equal(t, testContract, bundle[0].ContractAddress)
	assert.Equal(t, EntrypointClosePosition, bundle[0].Entrypoint)
	assert.Equal(t, repay.Flatten(), bundle[0].Calldata)
}

func TestBuildClosePosition_MissingRepayData(t *testing.T) {
	_, err := BuildClosePosition(testContract, backend.RepayData{SupplyToken: "0x1"})
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestBuildWithdrawAll_Order(t *testing.T) {
	repay := backend.RepayData{
		SupplyToken: "0x1",
		DebtToken:   "0x2",
		PoolKey:     testPoolKey(),
		SupplyPrice: "100",
		DebtPrice:   "200",
	}

	bundle, err := BuildWithdrawAll(testContract, repay, []string{"0xaaa", "0xbbb"})
	require.NoError(t, err)
	require.Len(t, bundle, 3)

	// Close first, then one withdraw per token in caller order.
	assert.Equal(t, EntrypointClosePosition, bundle[0].Entrypoint)

	assert.Equal(t, EntrypointWithdraw, bundle[1].Entrypoint)
	assert.Equal(t, []string{"0xaaa", "0", "0"}, bundle[1].Calldata)

	assert.Equal(t, EntrypointWithdraw, bundle[2].Entrypoint)
	assert.Equal(t, []string{"0xbbb", "0", "0"}, bundle[2].Calldata)
}

func TestBuildWithdrawAll_NoTokens(t *testing.T) {
	repay := backend.RepayData{
		SupplyToken: "0x1",
		DebtToken:   "0x2",
		PoolKey:     testPoolKey(),
	}

	_, err := BuildWithdrawAll(testContract, repay, nil)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = BuildWithdrawAll(testContract, repay, []string{"0xaaa", ""})
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestU256Parts(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		low     string
		high    string
		wantErr bool
	}{
		{name: "small decimal", amount: "1000", low: "1000", high: "0"},
		{name: "hex input", amount: "0xff", low: "255", high: "0"},
		{name: "exceeds 128 bits", amount: "340282366920938463463374607431768211457", low: "1", high: "1"},
		{name: "zero", amount: "0", low: "0", high: "0"},
		{name: "garbage", amount: "not-a-number", wantErr: true},
		{name: "negative", amount: "-5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, high, err := u256Parts(tt.amount)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIntent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.high, high)
		})
	}
}
