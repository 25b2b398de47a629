package eventsource

// EventHandler receives stream callbacks. Implementations are invoked from
// a single dispatch goroutine owned by the client, one callback at a time,
// in the order the underlying stream produced them.
//
// A panic inside a callback is recovered and logged; it does not stop the
// stream.
type EventHandler interface {
	// OnOpen is called when a stream connection has been established.
	OnOpen()

	// OnClosed is called when an established stream connection has ended,
	// before any reconnection attempt.
	OnClosed()

	// OnMessage is called for each event on the stream. The event name is
	// passed separately for convenience and equals message.Name().
	OnMessage(event string, message *MessageEvent)

	// OnComment is called for each comment line (a line starting with a
	// colon) on the stream, with the text after the colon.
	OnComment(comment string)

	// OnError is called when the client has encountered a connection
	// failure that the ConnectionErrorHandler decided not to shut down on.
	OnError(err error)
}

// ConnectionErrorAction is the decision returned by a
// ConnectionErrorHandler.
type ConnectionErrorAction int

const (
	// ActionProceed lets the client continue with its normal reconnect
	// behavior.
	ActionProceed ConnectionErrorAction = iota
	// ActionShutdown makes the client shut down permanently, as if Close
	// had been called. EventHandler.OnError is not invoked in this case.
	ActionShutdown
)

// ConnectionErrorHandler decides how the client reacts to a connection
// failure: a transport error, an unsuccessful HTTP response, or the server
// closing an established stream (StreamClosedByServerError). It runs on the
// stream goroutine and should return promptly.
type ConnectionErrorHandler func(err error) ConnectionErrorAction

// DefaultConnectionErrorHandler proceeds with reconnection on every error.
func DefaultConnectionErrorHandler(error) ConnectionErrorAction {
	return ActionProceed
}
