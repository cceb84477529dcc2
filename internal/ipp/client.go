package ipp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// PasswordSupplier is the authentication collaborator named in §6: the core
// calls out to it with a realm/resource and gets back a password, without
// caching it beyond one request/response.
type PasswordSupplier func(realm, resource string) (string, error)

// Trace receives the encoded request and decoded response of every IPP
// exchange, for the §6 verbose dump. Either argument may be nil.
type Trace func(direction string, m *Message)

// Client issues IPP requests over HTTP(S) to a single target URI. One
// Client corresponds to one open "connection" in the vocabulary of §5
// (suspension point: "opening a network connection"); the underlying
// *http.Client may itself pool TCP connections, which is an implementation
// detail the proxy core does not depend on.
type Client struct {
	target   *url.URL
	username string
	password PasswordSupplier
	http     *http.Client
	trace    Trace
	reqID    atomic.Int32

	mu sync.Mutex
}

// Options configure a new Client.
type Options struct {
	Username  string
	Password  PasswordSupplier
	Trace     Trace
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// Dial opens a Client against target, which must have scheme ipp or ipps.
// TLS is always used for ipps or port 443, matching §4.7.
func Dial(ctx context.Context, target string, opts Options) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("ipp: parse target %q: %w", target, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	useTLS := u.Scheme == "ipps"
	if port := u.Port(); port == "443" {
		useTLS = true
	}

	tlsConf := opts.TLSConfig
	if useTLS && tlsConf == nil {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	httpScheme := "http"
	if useTLS {
		httpScheme = "https"
	}
	httpURL := &url.URL{Scheme: httpScheme, Host: u.Host, Path: u.Path}
	if httpURL.Path == "" {
		httpURL.Path = "/"
	}

	dialer := &net.Dialer{Timeout: timeout}
	c := &Client{
		target:   httpURL,
		username: opts.Username,
		password: opts.Password,
		trace:    opts.Trace,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSClientConfig:     tlsConf,
				TLSHandshakeTimeout: timeout,
			},
		},
	}

	// Probing the connection up front surfaces DNS/refused-connection
	// failures at the same suspension point the caller's back-off loop
	// expects (§5: "Opening a network connection").
	conn, err := dialer.DialContext(ctx, "tcp", defaultPort(u))
	if err != nil {
		return nil, err
	}
	conn.Close()

	return c, nil
}

func defaultPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "631"
	if u.Scheme == "ipps" {
		port = "443"
	}
	return u.Hostname() + ":" + port
}

// NextRequestID returns a fresh, monotonically increasing request-id.
func (c *Client) NextRequestID() int32 { return c.reqID.Add(1) }

// Do sends req and returns the decoded response. If body is non-nil, its
// bytes follow the encoded attribute groups as the IPP message's document
// data (e.g. Send-Document, Print-Job).
func (c *Client) Do(ctx context.Context, req *Message, body []byte) (*Message, error) {
	return c.do(ctx, req, body, "")
}

// DoWithContentEncoding behaves like Do but additionally sets the HTTP
// Content-Encoding header on the request, letting the local device's HTTP
// layer decode a document the proxy forwards compressed but did not itself
// negotiate over an IPP compression attribute (§4.7: the local device does
// not advertise the encoding, so the proxy transcodes the framing rather
// than the payload bytes).
func (c *Client) DoWithContentEncoding(ctx context.Context, req *Message, body []byte, encoding string) (*Message, error) {
	return c.do(ctx, req, body, encoding)
}

func (c *Client) do(ctx context.Context, req *Message, body []byte, contentEncoding string) (*Message, error) {
	if c.trace != nil {
		c.trace("request", req)
	}

	req.Data = body
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		Encode(pw, req)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target.String(), pr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/ipp")
	if contentEncoding != "" {
		httpReq.Header.Set("Content-Encoding", contentEncoding)
	}
	if c.username != "" {
		password := ""
		if c.password != nil {
			password, _ = c.password(c.target.Host, c.target.Path)
		}
		httpReq.SetBasicAuth(c.username, password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ipp: request to %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Target: c.target.String()}
	}

	msg, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipp: decode response from %s: %w", c.target, err)
	}

	if c.trace != nil {
		c.trace("response", msg)
	}
	return msg, nil
}

// HTTPError represents a non-2xx/3xx HTTP status from the transport layer
// underneath IPP, which §4.1 treats as "error >= 400 discards the response
// and yields an empty attribute set".
type HTTPError struct {
	StatusCode int
	Target     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ipp: http status %d from %s", e.StatusCode, e.Target)
}

// StatusError represents an IPP-level (not HTTP-level) error response.
type StatusError struct {
	Status Status
	Op     Operation
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ipp: operation 0x%04x failed with status 0x%04x", e.Op, e.Status)
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
