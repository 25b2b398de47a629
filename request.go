package eventsource

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// buildRequest snapshots the fixed configuration plus the current
// Last-Event-ID into a request for one connection attempt.
func (c *Client) buildRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(c.config.Body) > 0 {
		body = bytes.NewReader(c.config.Body)
	}
	req, err := http.NewRequestWithContext(ctx, c.config.Method, c.config.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	// caller headers replace defaults for the same key rather than adding
	// to them
	for k, vs := range c.config.Headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if id := c.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	if t := c.config.RequestTransformer; t != nil {
		if out := t(req); out != nil {
			req = out
		}
	}
	return req, nil
}

// deadlineConn arms a fresh deadline for every read and write, which is how
// per-operation socket timeouts are expressed on a long-lived connection.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// buildHTTPClient constructs the transport for stream requests from the
// timeout configuration. A single pooled connection is kept, mirroring the
// one long-lived stream the client maintains.
func buildHTTPClient(cfg *Config) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{
				Conn:         conn,
				readTimeout:  cfg.ReadTimeout,
				writeTimeout: cfg.WriteTimeout,
			}, nil
		},
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        1,
		IdleConnTimeout:     time.Second,
		ForceAttemptHTTP2:   true,
	}
	if h2, err := http2.ConfigureTransports(transport); err == nil {
		// health-check idle HTTP/2 streams with pings so a dead peer is
		// noticed within the read timeout
		h2.ReadIdleTimeout = cfg.ReadTimeout
	}
	return &http.Client{Transport: transport}
}
