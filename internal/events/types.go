// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	OperationStarted EventType = "operation.started"
	OperationFailed  EventType = "operation.failed"

	ContractDeployed EventType = "contract.deployed"

	PositionOpened  EventType = "position.opened"
	DepositAdded    EventType = "position.deposit_added"
	PositionClosed  EventType = "position.closed"
	FundsWithdrawn  EventType = "position.funds_withdrawn"
	WalletConnected EventType = "wallet.connected"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// OperationStartedEvent is emitted when a lifecycle operation begins.
type OperationStartedEvent struct {
	BaseEvent
	Operation     string
	WalletAddress string
	TokenSymbol   string
}

// OperationFailedEvent is emitted when a lifecycle operation fails; the UI
// surfaces it to the user.
type OperationFailedEvent struct {
	BaseEvent
	Operation     string
	WalletAddress string
	ErrorKind     string
	Message       string
}

// ContractDeployedEvent is emitted once a proxy contract deployment confirms.
type ContractDeployedEvent struct {
	BaseEvent
	WalletAddress   string
	ContractAddress string
	TransactionHash string
}

// PositionOpenedEvent is emitted after the ledger acknowledges an opened
// position.
type PositionOpenedEvent struct {
	BaseEvent
	WalletAddress   string
	PositionID      string
	TokenSymbol     string
	Amount          string
	TransactionHash string
}

// DepositAddedEvent is emitted after an extra deposit lands.
type DepositAddedEvent struct {
	BaseEvent
	WalletAddress   string
	PositionID      string
	TokenSymbol     string
	TransactionHash string
}

// PositionClosedEvent is emitted after a close confirms and the ledger
// records it.
type PositionClosedEvent struct {
	BaseEvent
	WalletAddress   string
	PositionID      string
	TransactionHash string
}

// FundsWithdrawnEvent is emitted after a withdraw-all bundle confirms.
type FundsWithdrawnEvent struct {
	BaseEvent
	WalletAddress   string
	Tokens          []string
	TransactionHash string
}

// WalletConnectedEvent is emitted when a wallet session is established.
type WalletConnectedEvent struct {
	BaseEvent
	WalletAddress string
	ConnectorID   string
}

// NewBase stamps a base event with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}
