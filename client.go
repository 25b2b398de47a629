package eventsource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client maintains one SSE stream connection. It is created inactive; call
// Start to connect. All methods are safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	events     *dispatcher
	errHandler ConnectionErrorHandler
	log        zerolog.Logger
	metrics    *clientMetrics
	tracer     trace.Tracer

	readyState    atomic.Int32
	reconnectTime atomic.Int64 // nanoseconds; mutable from the wire via "retry:"
	lastEventID   atomic.Value // string
	cancelStream  atomic.Value // context.CancelFunc of the in-flight request

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	streamDone     chan struct{}
	streamDoneOnce sync.Once
}

// New creates a client for the given handler and configuration. The client
// does not connect until Start is called.
func New(handler EventHandler, cfg Config) (*Client, error) {
	if handler == nil {
		return nil, errNilHandler
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		lc := cfg.Logger.With().Str("component", "eventsource")
		if cfg.Name != "" {
			lc = lc.Str("client", cfg.Name)
		}
		log = lc.Logger()
	}

	c := &Client{
		config:     cfg,
		errHandler: cfg.ConnectionErrorHandler,
		log:        log,
		metrics:    newClientMetrics(cfg.Name),
		tracer:     otel.Tracer(scopeName),
		shutdownCh: make(chan struct{}),
		streamDone: make(chan struct{}),
	}
	c.httpClient = cfg.HTTPClient
	if c.httpClient == nil {
		c.httpClient = buildHTTPClient(&c.config)
	}
	c.events = newDispatcher(handler, log, c.metrics, cfg.MaxEventTasksInFlight)
	c.readyState.Store(int32(StateRaw))
	c.reconnectTime.Store(int64(cfg.ReconnectTime))
	c.lastEventID.Store(cfg.LastEventID)
	return c, nil
}

// Start connects to the stream on a background goroutine. It returns
// immediately and does nothing unless the client has never been started.
func (c *Client) Start() {
	if !c.casState(StateRaw, StateConnecting) {
		c.log.Info().Msg("start called on an already started client, doing nothing")
		return
	}
	c.logStateChange(StateRaw, StateConnecting)
	c.log.Info().Str("url", c.config.URL).Msg("starting SSE client")
	go c.run()
}

// Restart drops the current stream connection, if any, and reconnects with
// the usual backoff. If the client was never started it behaves like
// Start; while connecting, closed between attempts, or shut down, it does
// nothing.
func (c *Client) Restart() {
	for {
		prev := c.State()
		switch prev {
		case StateOpen:
			if !c.casState(StateOpen, StateClosed) {
				continue
			}
			c.logStateChange(StateOpen, StateClosed)
			c.closeCurrentStream(prev)
		case StateRaw:
			c.Start()
		}
		return
	}
}

// Close drops the current connection and permanently shuts the client
// down. It is safe to call any number of times, from any goroutine.
func (c *Client) Close() {
	prev := ReadyState(c.readyState.Swap(int32(StateShutdown)))
	if prev == StateShutdown {
		return
	}
	c.logStateChange(prev, StateShutdown)

	c.closeCurrentStream(prev)
	c.events.close()
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })
	if prev == StateRaw {
		// no stream goroutine was ever started
		c.streamDoneOnce.Do(func() { close(c.streamDone) })
	}
	c.httpClient.CloseIdleConnections()
}

// AwaitClosed blocks until both the dispatch and stream goroutines have
// terminated after Close, or the timeout elapses. It reports whether
// everything shut down in time.
func (c *Client) AwaitClosed(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case <-c.events.done:
	case <-deadline.C:
		return false
	}
	select {
	case <-c.streamDone:
	case <-deadline.C:
		return false
	}
	return true
}

// State returns the current lifecycle phase of the client.
func (c *Client) State() ReadyState {
	return ReadyState(c.readyState.Load())
}

// LastEventID returns the ID of the last event received, or the seed value
// from Config.LastEventID if none has arrived yet.
func (c *Client) LastEventID() string {
	return c.lastEventID.Load().(string)
}

// URL returns the stream endpoint.
func (c *Client) URL() string {
	return c.config.URL
}

// run is the stream goroutine: one connection attempt after another, with
// backoff between them, until shutdown.
func (c *Client) run() {
	defer c.streamDoneOnce.Do(func() { close(c.streamDone) })
	var connectedAt time.Time
	attempts := 0
	for c.State() != StateShutdown {
		if attempts == 0 {
			attempts++
		} else {
			attempts = c.maybeReconnectDelay(attempts, connectedAt)
			if c.State() == StateShutdown {
				return
			}
		}
		connectedAt = c.connectOnce()
	}
}

// maybeReconnectDelay sleeps the jittered backoff delay and returns the
// attempt counter for the next attempt. A connection that stayed open past
// the reset threshold starts the backoff over.
func (c *Client) maybeReconnectDelay(attempts int, connectedAt time.Time) int {
	base := c.currentReconnectTime()
	if base <= 0 {
		return attempts
	}
	counter := attempts
	if !connectedAt.IsZero() && time.Since(connectedAt) >= c.config.BackoffResetThreshold {
		counter = 1
	}
	sleep := backoffWithJitter(base, c.config.MaxReconnectTime, counter)
	c.log.Info().Dur("delay", sleep).Msg("waiting before reconnecting")
	c.metrics.reconnectScheduled()

	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.shutdownCh:
	}
	return counter + 1
}

// connectOnce performs a single connection attempt and drains the stream
// until it ends. It returns the time the connection reached the open
// state, or the zero time if it never did.
func (c *Client) connectOnce() time.Time {
	action := ActionProceed
	// states only move toward shutdown; never leave it
	for {
		prev := c.State()
		if prev == StateShutdown {
			return time.Time{}
		}
		if c.casState(prev, StateConnecting) {
			c.logStateChange(prev, StateConnecting)
			break
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelStream.Store(cancel)
	defer cancel()
	if c.State() == StateShutdown {
		// Close may have run before it could see this attempt's cancel
		return time.Time{}
	}

	alog := c.log.With().Str("attempt_id", uuid.NewString()).Logger()
	ctx, span := c.tracer.Start(ctx, "eventsource.connect",
		trace.WithAttributes(attribute.String("url", c.config.URL)))
	defer span.End()

	var connectedAt time.Time
	resp, err := c.attempt(ctx)
	switch {
	case err != nil:
		if st := c.State(); st != StateShutdown && st != StateClosed {
			alog.Debug().Err(err).Msg("connection problem")
			span.SetStatus(codes.Error, err.Error())
			action = c.dispatchError(err)
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		alog.Debug().Int("status", resp.StatusCode).Msg("unsuccessful response")
		span.SetStatus(codes.Error, resp.Status)
		resp.Body.Close()
		action = c.dispatchError(UnsuccessfulResponseError{Code: resp.StatusCode})
	default:
		connectedAt = time.Now()
		err := c.consumeStream(resp, alog)
		c.metrics.connectionEnded(connectedAt)
		if err != nil {
			if st := c.State(); st != StateShutdown && st != StateClosed {
				alog.Debug().Err(err).Msg("connection problem")
				span.SetStatus(codes.Error, err.Error())
				action = c.dispatchError(err)
			}
		} else {
			// the server ended the stream; the connection error handler
			// may choose not to retry, but the user handler's OnError is
			// not involved
			if st := c.State(); st != StateShutdown && st != StateClosed {
				alog.Warn().Msg("connection unexpectedly closed")
				action = c.errHandler(StreamClosedByServerError{})
			}
		}
	}

	if action == ActionShutdown {
		c.log.Info().Msg("connection has been explicitly shut down by error handler")
		c.Close()
	} else {
		if c.casState(StateOpen, StateClosed) {
			c.logStateChange(StateOpen, StateClosed)
			c.events.onClosed()
		} else if c.casState(StateConnecting, StateClosed) {
			c.logStateChange(StateConnecting, StateClosed)
		}
	}
	return connectedAt
}

// attempt builds and executes one stream request.
func (c *Client) attempt(ctx context.Context) (*http.Response, error) {
	req, err := c.buildRequest(ctx)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// consumeStream parses the response body until the server closes it or a
// read fails. A clean end of stream returns nil.
func (c *Client) consumeStream(resp *http.Response, alog zerolog.Logger) error {
	defer resp.Body.Close()

	for {
		prev := c.State()
		if prev == StateShutdown {
			return nil
		}
		if !c.casState(prev, StateOpen) {
			continue
		}
		if prev != StateConnecting {
			alog.Warn().Stringer("from", prev).Stringer("to", StateOpen).Msg("unexpected readyState change")
		} else {
			c.logStateChange(prev, StateOpen)
		}
		break
	}
	alog.Info().Msg("connected to SSE stream")
	c.events.onOpen()

	parser := newEventParser(
		newLineScanner(resp.Body, c.config.ReadBufferSize),
		c.config.URL,
		c.events,
		c,
		c.LastEventID(),
		c.config.StreamEventData,
		c.config.ExpectFields,
		alog,
	)
	if err := parser.run(); !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// dispatchError routes a connection failure through the connection error
// handler; unless the handler asks for shutdown, the user handler's
// OnError is invoked too.
func (c *Client) dispatchError(err error) ConnectionErrorAction {
	action := c.errHandler(err)
	if action != ActionShutdown {
		c.events.onError(err)
	}
	return action
}

// closeCurrentStream tells the handler about an open connection going away
// and cancels the in-flight request so pending reads fail promptly.
func (c *Client) closeCurrentStream(prev ReadyState) {
	if prev == StateOpen {
		c.events.onClosed()
	}
	if cancel, ok := c.cancelStream.Load().(context.CancelFunc); ok && cancel != nil {
		cancel()
		c.log.Debug().Msg("request cancelled")
	}
}

// setReconnectionTime and setLastEventID are the parser's feedback
// channel; the wire can adjust both through "retry:" and "id:" fields.
func (c *Client) setReconnectionTime(t time.Duration) {
	c.reconnectTime.Store(int64(t))
}

func (c *Client) setLastEventID(id string) {
	c.lastEventID.Store(id)
}

func (c *Client) currentReconnectTime() time.Duration {
	return time.Duration(c.reconnectTime.Load())
}

func (c *Client) casState(from, to ReadyState) bool {
	return c.readyState.CompareAndSwap(int32(from), int32(to))
}

func (c *Client) logStateChange(from, to ReadyState) {
	c.log.Debug().Stringer("from", from).Stringer("to", to).Msg("readyState change")
}
