package eventsource

import (
	"errors"
	"fmt"
)

var errNilHandler = errors.New("eventsource: handler must not be nil")

// UnsuccessfulResponseError means the server returned a non-2xx status for
// a stream request. The client treats this like any other connection
// failure and retries unless told otherwise.
type UnsuccessfulResponseError struct {
	// Code is the HTTP status code.
	Code int
}

// Error implements the error interface.
func (e UnsuccessfulResponseError) Error() string {
	return fmt.Sprintf("eventsource: server returned HTTP status %d", e.Code)
}

// StreamClosedByServerError means the server cleanly closed an established
// stream. It is passed to the ConnectionErrorHandler only; the
// EventHandler's OnError is not called for this condition.
type StreamClosedByServerError struct{}

// Error implements the error interface.
func (StreamClosedByServerError) Error() string {
	return "eventsource: stream closed by server"
}
