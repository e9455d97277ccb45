package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/torosent/shopflow/internal/tracing"
)

// Recorder receives one observation per HTTP exchange.
type Recorder interface {
	RecordRequest(step string, latency time.Duration, status int, failed bool)
}

// Request describes one call against a logical backend host.
type Request struct {
	Method string
	Host   string // logical host, sent as the Host header
	Path   string
	Body   any // JSON-encoded when non-nil
	// Acceptable lists statuses that do not fail the call. Empty means 200-399.
	Acceptable []int
	Token      string
	Step       string // metrics tag
}

// Response is a fully read HTTP response.
type Response struct {
	Status  int
	Body    []byte
	Latency time.Duration
}

// JSON looks up a gjson path in the response body.
func (r *Response) JSON(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Array returns the elements of a top-level JSON array and whether the
// body was one.
func (r *Response) Array() ([]gjson.Result, bool) {
	if r == nil {
		return nil, false
	}
	root := gjson.ParseBytes(r.Body)
	if !root.IsArray() {
		return nil, false
	}
	return root.Array(), true
}

// Snippet returns a bounded, trimmed copy of the body for diagnostics.
func (r *Response) Snippet() string {
	if r == nil {
		return ""
	}
	return snippet(r.Body)
}

// StatusError reports a response whose status is outside the acceptable set.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected HTTP %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Options configure a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	RatePerSecond  int          // shared request budget; 0 means unlimited
	Recorder       Recorder     // optional
	PropagateTrace bool         // inject W3C trace context headers
	HTTPClient     *http.Client // optional, overrides Timeout
}

// Client issues single requests with bearer credentials and host overrides.
// It never retries.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	recorder  Recorder
	propagate bool
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = NewClient(opts.Timeout)
	}
	c := &Client{
		baseURL:   base,
		http:      hc,
		recorder:  opts.Recorder,
		propagate: opts.PropagateTrace,
	}
	if opts.RatePerSecond > 0 {
		// Burst equal to rps to smooth pacing under concurrency.
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond)
	}
	return c, nil
}

// Do sends r. A transport failure returns a nil Response. A status outside
// r.Acceptable returns both the Response and a *StatusError.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if strings.TrimSpace(r.Token) == "" {
		return nil, errors.New("bearer credential is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}

	body, err := NewJSONBody(r.Body)
	if err != nil {
		return nil, err
	}
	reader, err := body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+r.Path, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	if length, ok := body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = body.NewReader
	if r.Host != "" {
		req.Host = r.Host
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(r.Step, time.Since(start), 0, true)
		return nil, fmt.Errorf("%s %s: %w", method, r.Path, err)
	}
	data, err := readBody(resp.Body)
	_ = resp.Body.Close()
	latency := time.Since(start)
	if err != nil {
		c.record(r.Step, latency, resp.StatusCode, true)
		return nil, fmt.Errorf("%s %s: read body: %w", method, r.Path, err)
	}

	out := &Response{Status: resp.StatusCode, Body: data, Latency: latency}
	accepted := IsAcceptable(resp.StatusCode, r.Acceptable)
	c.record(r.Step, latency, resp.StatusCode, !accepted)
	if !accepted {
		return out, &StatusError{
			Method: method,
			Path:   r.Path,
			Status: resp.StatusCode,
			Body:   snippet(data),
		}
	}
	return out, nil
}

func (c *Client) record(step string, latency time.Duration, status int, failed bool) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordRequest(step, latency, status, failed)
}

// IsAcceptable reports whether status is non-failing for the given set.
func IsAcceptable(status int, acceptable []int) bool {
	if len(acceptable) == 0 {
		return status >= 200 && status < 400
	}
	return slices.Contains(acceptable, status)
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
