package eventsource

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// connectionHandler is the narrow surface the parser uses to feed stream
// directives back to the client.
type connectionHandler interface {
	setReconnectionTime(t time.Duration)
	setLastEventID(id string)
}

// eventParser applies the SSE field parsing algorithm to the lines of one
// connection. Parser state does not survive a disconnect; the client builds
// a fresh parser for every successful response.
type eventParser struct {
	scanner *lineScanner
	origin  string
	events  *dispatcher
	control connectionHandler
	log     zerolog.Logger

	streamData  bool
	expectEvent bool
	expectID    bool

	// lastEventID is committed at dispatch time; idPending holds the value
	// of the latest valid "id:" field, which may have arrived in an event
	// that was never dispatched.
	lastEventID string
	idPending   string
	idSet       bool

	// per-event state, reset on each terminating blank line
	eventName   string
	dataBuf     strings.Builder
	haveData    bool
	seenEvent   bool
	seenID      bool
	bufferEvent bool
}

func newEventParser(scanner *lineScanner, origin string, events *dispatcher,
	control connectionHandler, lastEventID string, streamData bool,
	expectFields []string, log zerolog.Logger) *eventParser {

	p := &eventParser{
		scanner:     scanner,
		origin:      origin,
		events:      events,
		control:     control,
		log:         log,
		streamData:  streamData,
		lastEventID: lastEventID,
	}
	for _, f := range expectFields {
		// only "event" and "id" can precede "data"; other names are ignored
		switch f {
		case "event":
			p.expectEvent = true
		case "id":
			p.expectID = true
		}
	}
	return p
}

// run consumes the stream until end of input or a read failure. A clean end
// of input is reported as io.EOF.
func (p *eventParser) run() error {
	for {
		if err := p.processLine(); err != nil {
			return err
		}
	}
}

// lineStart is the beginning of a line, read just far enough to classify
// it.
type lineStart struct {
	blank   bool
	comment bool
	name    string
	rest    []byte // unread remainder of the chunk after the field name
	eol     bool
}

// readFieldStart reads the start of the next line up to its first colon (or
// its end, for a line with no colon). For a field line the single leading
// space of the value is already stripped from rest.
func (p *eventParser) readFieldStart() (lineStart, error) {
	chunk, eol, err := p.scanner.scanChunk()
	if err != nil {
		return lineStart{}, err
	}
	if len(chunk) == 0 && eol {
		return lineStart{blank: true, eol: true}, nil
	}
	if len(chunk) > 0 && chunk[0] == ':' {
		return lineStart{comment: true, rest: chunk[1:], eol: eol}, nil
	}
	var nameAcc []byte
	for {
		if i := bytes.IndexByte(chunk, ':'); i >= 0 {
			name := chunk[:i]
			if nameAcc != nil {
				name = append(nameAcc, name...)
			}
			field := string(name)
			rest := chunk[i+1:]
			if len(rest) == 0 && !eol {
				// the value starts in the next chunk, which may begin with
				// the space to strip
				rest, eol, err = p.scanner.scanChunk()
				if err != nil {
					if errors.Is(err, io.EOF) {
						return lineStart{name: field, eol: true}, nil
					}
					return lineStart{}, err
				}
			}
			if len(rest) > 0 && rest[0] == ' ' {
				rest = rest[1:]
			}
			return lineStart{name: field, rest: rest, eol: eol}, nil
		}
		if eol {
			if nameAcc != nil {
				chunk = append(nameAcc, chunk...)
			}
			return lineStart{name: string(chunk), eol: true}, nil
		}
		nameAcc = append(nameAcc, chunk...)
		chunk, eol, err = p.scanner.scanChunk()
		if err != nil {
			// a field name cut off by end of input carries no value and
			// would be ignored anyway
			return lineStart{}, err
		}
	}
}

// finishValue accumulates the remainder of the current line.
func (p *eventParser) finishValue(rest []byte, eol bool) (string, error) {
	if eol {
		return string(rest), nil
	}
	acc := append([]byte(nil), rest...)
	for {
		chunk, end, err := p.scanner.scanChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(acc), nil
			}
			return "", err
		}
		acc = append(acc, chunk...)
		if end {
			return string(acc), nil
		}
	}
}

func (p *eventParser) processLine() error {
	ls, err := p.readFieldStart()
	if err != nil {
		return err
	}
	if ls.blank {
		p.dispatchBuffered()
		return nil
	}
	if ls.comment {
		text, err := p.finishValue(ls.rest, ls.eol)
		if err != nil {
			return err
		}
		p.events.onComment(text)
		return nil
	}
	if ls.name == "data" && p.streamData && !p.bufferEvent {
		if p.canStreamNow() {
			return p.dispatchStreaming(ls.rest, ls.eol)
		}
		p.bufferEvent = true
	}
	value, err := p.finishValue(ls.rest, ls.eol)
	if err != nil {
		return err
	}
	p.processField(ls.name, value)
	return nil
}

func (p *eventParser) processField(name, value string) {
	switch name {
	case "event":
		p.eventName = value
		p.seenEvent = true
	case "data":
		if p.haveData {
			p.dataBuf.WriteByte('\n')
		}
		p.dataBuf.WriteString(value)
		p.haveData = true
	case "id":
		if !strings.Contains(value, "\x00") {
			p.idPending = value
			p.idSet = true
			p.seenID = true
		}
	case "retry":
		if t, ok := parseRetry(value); ok {
			p.control.setReconnectionTime(t)
		} else {
			p.log.Debug().Str("value", value).Msg("ignoring invalid retry field")
		}
	default:
		// unknown fields are ignored
	}
}

// parseRetry accepts only a non-empty all-digit value, in milliseconds.
func parseRetry(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// commitID publishes the pending event ID. This happens only when an event
// is dispatched; an "id:" field in an event that never dispatches takes
// effect on the next dispatched event.
func (p *eventParser) commitID() {
	if p.idSet {
		p.lastEventID = p.idPending
		p.control.setLastEventID(p.idPending)
		p.idSet = false
	}
}

// dispatchBuffered handles the blank line that terminates an event. An
// event without any data field dispatches nothing.
func (p *eventParser) dispatchBuffered() {
	if !p.haveData {
		p.resetEvent()
		return
	}
	p.commitID()
	name := p.eventName
	if name == "" {
		name = DefaultEventName
	}
	p.events.onMessage(name, newMessageEvent(name, p.dataBuf.String(), p.lastEventID, p.origin))
	p.resetEvent()
}

func (p *eventParser) resetEvent() {
	p.eventName = ""
	p.dataBuf.Reset()
	p.haveData = false
	p.seenEvent = false
	p.seenID = false
	p.bufferEvent = false
}

func (p *eventParser) canStreamNow() bool {
	if p.expectEvent && !p.seenEvent {
		return false
	}
	if p.expectID && !p.seenID {
		return false
	}
	return true
}

// dispatchStreaming hands the event to the handler as soon as its first
// data field arrives, with a reader that pulls the payload directly from
// the stream. The call blocks until the handler returns; fields that
// arrive after the data in this mode are ignored.
func (p *eventParser) dispatchStreaming(first []byte, lineEnded bool) error {
	p.commitID()
	name := p.eventName
	if name == "" {
		name = DefaultEventName
	}
	r := &dataReader{p: p, cur: first, lineEnded: lineEnded}
	p.events.onMessageSync(name, newStreamingMessageEvent(r, name, p.lastEventID, p.origin))
	return p.finishStreamingEvent(r)
}

// finishStreamingEvent consumes whatever the handler left unread and moves
// the scanner past the end of the event.
func (p *eventParser) finishStreamingEvent(r *dataReader) error {
	for !r.done {
		if r.err != nil {
			r.closed = true
			return r.err
		}
		r.cur = nil
		r.pendingNL = false
		if err := r.advance(); err != nil {
			r.closed = true
			return err
		}
	}
	r.closed = true
	if r.eventDone {
		p.resetEvent()
		return nil
	}
	return p.skipRestOfEvent(r.midLine)
}

// skipRestOfEvent discards the lines that follow a streamed event's data,
// through the blank line that terminates the event.
func (p *eventParser) skipRestOfEvent(midLine bool) error {
	if midLine {
		for {
			_, eol, err := p.scanner.scanChunk()
			if err != nil {
				return err
			}
			if eol {
				break
			}
		}
	}
	for {
		line, err := p.scanner.scanLine()
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
	}
	p.resetEvent()
	return nil
}

// dataReader streams the payload of a single event. It yields the value
// bytes of consecutive data fields with a newline between them, and reports
// io.EOF when the event's data ends. It borrows the scanner of its parser
// and must not be used after the handler call that received it returns.
type dataReader struct {
	p         *eventParser
	cur       []byte
	lineEnded bool
	pendingNL bool
	done      bool // no more data in this event
	eventDone bool // the terminating blank line (or end of input) was consumed
	midLine   bool // stopped inside an unterminated non-data line
	closed    bool
	err       error
}

// Read implements io.Reader.
func (r *dataReader) Read(b []byte) (int, error) {
	if r.closed || r.done {
		return 0, io.EOF
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(b) == 0 {
		return 0, nil
	}
	if !r.pendingNL && len(r.cur) == 0 {
		if err := r.advance(); err != nil {
			r.err = err
			return 0, err
		}
		if r.done {
			return 0, io.EOF
		}
	}
	var n int
	if r.pendingNL {
		b[0] = '\n'
		r.pendingNL = false
		n = 1
	}
	m := copy(b[n:], r.cur)
	r.cur = r.cur[m:]
	return n + m, nil
}

// advance refills cur from the stream, crossing onto the next line when it
// is another data field.
func (r *dataReader) advance() error {
	for len(r.cur) == 0 && !r.pendingNL && !r.done {
		if !r.lineEnded {
			chunk, eol, err := r.p.scanner.scanChunk()
			if err != nil {
				if errors.Is(err, io.EOF) {
					r.done, r.eventDone = true, true
					return nil
				}
				return err
			}
			r.cur, r.lineEnded = chunk, eol
			continue
		}
		ls, err := r.p.readFieldStart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done, r.eventDone = true, true
				return nil
			}
			return err
		}
		if ls.blank {
			r.done, r.eventDone = true, true
			return nil
		}
		if ls.comment || ls.name != "data" {
			r.done = true
			r.midLine = !ls.eol
			return nil
		}
		r.pendingNL = true
		r.cur, r.lineEnded = ls.rest, ls.eol
	}
	return nil
}
