// Package eventsource implements a client for the Server-Sent Events (SSE)
// protocol as described in the HTML Living Standard.
//
// The client connects to a text/event-stream endpoint, parses the wire
// format incrementally with bounded memory, delivers events to a caller
// supplied handler on a dedicated dispatch goroutine, and reconnects
// automatically with jittered exponential backoff when the connection is
// lost.
//
// # Usage
//
//	cfg := eventsource.Config{URL: "https://example.com/stream"}
//	client, err := eventsource.New(handler, cfg)
//	if err != nil {
//	    return err
//	}
//	client.Start()
//	defer client.Close()
//
// The handler implements EventHandler. All handler callbacks are invoked
// sequentially from a single goroutine, never concurrently.
//
// # Reconnection
//
// Unlike a browser EventSource, this client retries on every connection
// failure, including HTTP error responses, unless a ConnectionErrorHandler
// tells it to shut down. The delay before each attempt grows exponentially
// from Config.ReconnectTime up to Config.MaxReconnectTime, with random
// jitter, and resets once a connection has stayed open for at least
// Config.BackoffResetThreshold. A "retry:" field on the stream overrides
// the base delay.
//
// # Streaming data mode
//
// With Config.StreamEventData enabled the handler receives each event as
// soon as its first "data:" field arrives, reading the payload
// incrementally through MessageEvent.DataReader. See Config.ExpectFields
// for the constraints of this mode.
package eventsource
