package peacepad

// ConnectionState represents the current state of the signaling connection.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected and no further
	// automatic attempts are scheduled.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the client is establishing a connection.
	StateConnecting

	// StateConnected means the signaling socket is open and ready.
	StateConnected

	// StateReconnecting means the connection dropped and a retry is
	// scheduled or in progress.
	StateReconnecting

	// StateClosed means the client has been explicitly closed.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // Optional error that caused the state change
}
