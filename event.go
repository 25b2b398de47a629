package eventsource

import (
	"io"
	"strings"
)

// DefaultEventName is the event name used when the stream does not carry an
// "event:" field for an event.
const DefaultEventName = "message"

// MessageEvent is a single event received from the stream.
//
// In the default buffered mode the full payload is available through Data.
// In streaming data mode (Config.StreamEventData) the payload arrives
// incrementally through DataReader, and Data reads the remainder of it into
// memory on first use.
type MessageEvent struct {
	name        string
	data        string
	dataReader  io.Reader
	dataRead    bool
	lastEventID string
	origin      string
}

func newMessageEvent(name, data, lastEventID, origin string) *MessageEvent {
	return &MessageEvent{
		name:        name,
		data:        data,
		dataRead:    true,
		lastEventID: lastEventID,
		origin:      origin,
	}
}

func newStreamingMessageEvent(r io.Reader, name, lastEventID, origin string) *MessageEvent {
	return &MessageEvent{
		name:        name,
		dataReader:  r,
		lastEventID: lastEventID,
		origin:      origin,
	}
}

// Name returns the event name, DefaultEventName if the stream did not
// specify one.
func (e *MessageEvent) Name() string { return e.name }

// Data returns the event payload. Multiple "data:" lines are joined with a
// single newline and no trailing newline is added.
//
// In streaming data mode this reads whatever the reader has not yet
// consumed and caches it, so it must be called from the handler before the
// handler returns.
func (e *MessageEvent) Data() string {
	if !e.dataRead {
		b, _ := io.ReadAll(e.dataReader)
		e.data = string(b)
		e.dataRead = true
	}
	return e.data
}

// DataReader returns an incremental reader over the event payload. In
// buffered mode it reads from the already received data.
//
// In streaming data mode the reader is backed directly by the stream and is
// only valid during the handler call that received the event; once the
// handler returns, further reads report io.EOF.
func (e *MessageEvent) DataReader() io.Reader {
	if e.dataReader == nil {
		e.dataReader = strings.NewReader(e.data)
	}
	return e.dataReader
}

// LastEventID returns the stream's event ID as of the moment this event was
// dispatched. It may be the value seeded through Config.LastEventID if no
// "id:" field has been received yet.
func (e *MessageEvent) LastEventID() string { return e.lastEventID }

// Origin returns the URL of the stream that produced the event.
func (e *MessageEvent) Origin() string { return e.origin }
