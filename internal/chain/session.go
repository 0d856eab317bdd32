// internal/chain/session.go
package chain

// Session describes the currently connected wallet. The gateway owns exactly
// one session at a time; a reconnect replaces it, a disconnect destroys it.
type Session struct {
	Address     string
	ConnectorID string
	IsConnected bool
}
