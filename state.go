package eventsource

// ReadyState is the lifecycle phase of a Client, observable at any time
// through Client.State.
type ReadyState int32

const (
	// StateRaw means the client has been created but Start has never been
	// called.
	StateRaw ReadyState = iota
	// StateConnecting means a connection attempt is in progress.
	StateConnecting
	// StateOpen means a stream connection is established and events are
	// being read.
	StateOpen
	// StateClosed means the client is inactive between connection attempts.
	StateClosed
	// StateShutdown means the client has been permanently stopped. No
	// further transitions happen after this.
	StateShutdown
)

// String returns the state name.
func (s ReadyState) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
