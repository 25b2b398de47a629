package eventsource

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultReconnectTime         = time.Second
	DefaultMaxReconnectTime      = 30 * time.Second
	DefaultBackoffResetThreshold = 60 * time.Second
	DefaultConnectTimeout        = 10 * time.Second
	DefaultReadTimeout           = 5 * time.Minute
	DefaultWriteTimeout          = 5 * time.Second
	DefaultReadBufferSize        = 1000
)

// Config configures a Client. URL is the only required field.
type Config struct {
	// URL is the stream endpoint. Must be http or https.
	URL string `yaml:"url" mapstructure:"url" validate:"required"`

	// Method is the HTTP method used for stream requests, uppercased.
	// Defaults to GET.
	Method string `yaml:"method" mapstructure:"method"`

	// Body is an optional request body, resent on every attempt.
	Body []byte `yaml:"-" mapstructure:"-"`

	// Headers are merged over the default headers (Accept,
	// Cache-Control). Setting any value for a default header replaces the
	// default entirely.
	Headers http.Header `yaml:"headers" mapstructure:"headers"`

	// LastEventID seeds the Last-Event-ID request header before any event
	// with an ID has been received.
	LastEventID string `yaml:"last_event_id" mapstructure:"last_event_id"`

	// Name distinguishes this client in logs and metrics when a process
	// runs several of them.
	Name string `yaml:"name" mapstructure:"name"`

	// ReconnectTime is the base delay before reconnection attempts; the
	// server can override it with a "retry:" field. A negative value
	// disables the delay entirely. Defaults to 1s.
	ReconnectTime time.Duration `yaml:"reconnect_time" mapstructure:"reconnect_time"`

	// MaxReconnectTime caps the exponentially growing delay. Defaults to
	// 30s.
	MaxReconnectTime time.Duration `yaml:"max_reconnect_time" mapstructure:"max_reconnect_time"`

	// BackoffResetThreshold is how long a connection must stay open for
	// the backoff to start over at the base delay after the next failure.
	// Defaults to 60s.
	BackoffResetThreshold time.Duration `yaml:"backoff_reset_threshold" mapstructure:"backoff_reset_threshold"`

	// ConnectTimeout bounds dialing (and TLS handshake) of new
	// connections. Defaults to 10s. Ignored when HTTPClient is set.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// ReadTimeout bounds each socket read; a stream that stays silent
	// longer is dropped and reconnected. Defaults to 5m. Ignored when
	// HTTPClient is set.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	// WriteTimeout bounds each socket write. Defaults to 5s. Ignored when
	// HTTPClient is set.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// ReadBufferSize is the fixed buffer the line scanner reads through.
	// Lines that fit are handled without extra allocation; longer lines
	// spill into a temporary growable buffer. Defaults to 1000 bytes.
	ReadBufferSize int `yaml:"read_buffer_size" mapstructure:"read_buffer_size" validate:"gte=0"`

	// StreamEventData dispatches each event as soon as its first "data:"
	// field arrives, exposing the payload through MessageEvent.DataReader.
	// Fields that arrive after the data are ignored in this mode.
	StreamEventData bool `yaml:"stream_event_data" mapstructure:"stream_event_data"`

	// ExpectFields lists fields ("event", "id") the server is known to
	// send before "data:". In streaming data mode, an event whose listed
	// fields have not arrived yet falls back to buffered delivery so they
	// are not lost. Other names are ignored.
	ExpectFields []string `yaml:"expect_fields" mapstructure:"expect_fields"`

	// MaxEventTasksInFlight bounds the number of handler callbacks that
	// may be queued or running at once; the stream goroutine blocks while
	// the bound is reached. Zero means unbounded.
	MaxEventTasksInFlight int `yaml:"max_event_tasks_in_flight" mapstructure:"max_event_tasks_in_flight" validate:"gte=0"`

	// RequestTransformer, when set, receives every prepared request last
	// and may return a modified one.
	RequestTransformer func(*http.Request) *http.Request `yaml:"-" mapstructure:"-"`

	// ConnectionErrorHandler decides whether a connection failure leads to
	// a reconnect or a shutdown. Defaults to always reconnecting.
	ConnectionErrorHandler ConnectionErrorHandler `yaml:"-" mapstructure:"-"`

	// HTTPClient, when set, replaces the client the library builds from
	// the timeout fields above. The caller then owns all transport
	// concerns.
	HTTPClient *http.Client `yaml:"-" mapstructure:"-"`

	// Logger receives client logging. Nil disables logging.
	Logger *zerolog.Logger `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults. To run
// with no reconnect delay at all, set ReconnectTime to a negative value.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = http.MethodGet
	}
	c.Method = strings.ToUpper(c.Method)
	if c.ReconnectTime == 0 {
		c.ReconnectTime = DefaultReconnectTime
	}
	if c.MaxReconnectTime == 0 {
		c.MaxReconnectTime = DefaultMaxReconnectTime
	}
	if c.BackoffResetThreshold == 0 {
		c.BackoffResetThreshold = DefaultBackoffResetThreshold
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.ConnectionErrorHandler == nil {
		c.ConnectionErrorHandler = DefaultConnectionErrorHandler
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return fmt.Errorf("eventsource: invalid config: %w", err)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("eventsource: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("eventsource: URL scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
