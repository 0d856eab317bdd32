// internal/backend/types.go
package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PositionID identifies a position record on the ledger. Older backend
// revisions issued integer ids, newer ones UUIDs, so the id decodes from
// either a JSON number or a string.
type PositionID string

func (p *PositionID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*p = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*p = PositionID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("position_id must be a string or number: %w", err)
	}
	*p = PositionID(n.String())
	return nil
}

func (p PositionID) String() string { return string(p) }

// DeploymentRecord is the ledger's view of a wallet's proxy contract. It is
// the source of truth for deployment idempotency across sessions.
type DeploymentRecord struct {
	WalletID           string `json:"wallet_id"`
	IsContractDeployed bool   `json:"is_contract_deployed"`
	ContractAddress    string `json:"contract_address"`
}

// PoolKey identifies the AMM pool a position loops liquidity through.
type PoolKey struct {
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         string `json:"fee"`
	TickSpacing string `json:"tick_spacing"`
	Extension   string `json:"extension"`
}

// Empty reports whether the key carries no pool at all.
func (k PoolKey) Empty() bool {
	return k.Token0 == "" && k.Token1 == ""
}

// Flatten appends the pool key fields in entrypoint calldata order.
func (k PoolKey) Flatten() []string {
	return []string{k.Token0, k.Token1, k.Fee, k.TickSpacing, k.Extension}
}

// DepositData is the deposit leg of an open-position transaction as
// materialized by the ledger: token address and raw on-chain amount.
type DepositData struct {
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Multiplier string `json:"multiplier"`
}

// OpenPositionData is the create-position response: a Pending position record
// plus everything needed to assemble the loop_liquidity bundle.
type OpenPositionData struct {
	PositionID      PositionID  `json:"position_id"`
	ContractAddress string      `json:"contract_address"`
	PoolKey         PoolKey     `json:"pool_key"`
	DepositData     DepositData `json:"deposit_data"`
}

// RepayData is the get-repay-data response used for close and withdraw
// bundles.
type RepayData struct {
	SupplyToken     string     `json:"supply_token"`
	DebtToken       string     `json:"debt_token"`
	PoolKey         PoolKey    `json:"pool_key"`
	SupplyPrice     string     `json:"supply_price"`
	DebtPrice       string     `json:"debt_price"`
	ContractAddress string     `json:"contract_address"`
	PositionID      PositionID `json:"position_id"`
}

// Flatten appends the repay fields in close_position calldata order.
func (r RepayData) Flatten() []string {
	out := []string{r.SupplyToken, r.DebtToken}
	out = append(out, r.PoolKey.Flatten()...)
	return append(out, r.SupplyPrice, r.DebtPrice)
}

// PositionStatus is the ledger-side lifecycle state of a position record.
type PositionStatus string

const (
	PositionPending PositionStatus = "pending"
	PositionOpened  PositionStatus = "opened"
	PositionClosed  PositionStatus = "closed"
)

// PositionCheck is the check-position response.
type PositionCheck struct {
	HasOpenedPosition bool           `json:"has_opened_position"`
	PositionID        PositionID     `json:"position_id"`
	Status            PositionStatus `json:"status"`
	TokenSymbol       string         `json:"token_symbol"`
	Amount            string         `json:"amount"`
	Multiplier        float64        `json:"multiplier"`
}

// ExtraDepositRequest is the add-extra-deposit payload.
type ExtraDepositRequest struct {
	PositionID  PositionID `json:"position_id"`
	Amount      float64    `json:"amount"`
	TokenSymbol string     `json:"token_symbol"`
}
