// Package httpclient is a resilient JSON client for a single upstream API.
// Every call runs through one retry loop that adds authentication, a
// correlation ID and an optional idempotency key, retries transient failures
// with jittered exponential backoff, and reports the outcome as a Response
// plus a typed error.
package httpclient

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	cistrace "github.com/vapeshed/cis-bricks/trace"
)

const (
	// HeaderXRequestID carries the correlation ID on every attempt
	HeaderXRequestID = cistrace.HeaderXRequestID
	// HeaderIdempotencyKey carries the idempotency key on idempotent writes
	HeaderIdempotencyKey = cistrace.HeaderIdempotencyKey

	defaultTimeout            = 30 * time.Second
	defaultMaxRetries         = 3
	defaultBaseBackoff        = 200 * time.Millisecond
	defaultMaxPayloadLogBytes = 1024
	defaultMaxResponseBytes   = 10 << 20
	defaultUserAgent          = "cis-bricks-httpclient/1.0"
	maxErrorBodyExcerpt       = 256
)

// Client defines the REST client interface for making HTTP requests
type Client interface {
	Get(ctx context.Context, path string, query url.Values, opts *Options) (*Response, error)
	Post(ctx context.Context, path string, body any, opts *Options) (*Response, error)
	Put(ctx context.Context, path string, body any, opts *Options) (*Response, error)
	Patch(ctx context.Context, path string, body any, opts *Options) (*Response, error)
	Delete(ctx context.Context, path string, opts *Options) (*Response, error)
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Options holds per-call settings.
type Options struct {
	// Idempotent attaches an Idempotency-Key header to POST, PUT and PATCH requests.
	Idempotent bool
	// Timeout overrides the client's per-attempt timeout when positive.
	Timeout time.Duration
	// Headers are added to every attempt. They cannot replace Authorization,
	// X-Request-ID or Idempotency-Key.
	Headers map[string]string
}

// Request describes one logical call.
type Request struct {
	Method string
	// Path is resolved against Config.BaseURL unless it is an absolute URL.
	Path  string
	Query url.Values
	// Body is JSON-encoded; []byte, json.RawMessage and string are sent verbatim.
	Body    any
	Options Options
}

// Response represents an HTTP response with tracking information.
// On failure it holds the last observed status (0 when no response arrived).
type Response struct {
	StatusCode     int
	Body           []byte
	Headers        nethttp.Header
	RequestID      string
	IdempotencyKey string
	Stats          Stats
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	Attempts    int
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// RequestInterceptor is called before each physical attempt is sent
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after each physical attempt receives a response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Config holds the REST client configuration
type Config struct {
	// BaseURL is the upstream API root, e.g. https://store.retail.lightspeed.app/api/2.0. Required.
	BaseURL string
	// Token is sent as a bearer credential. Required.
	Token string
	// Timeout bounds each physical attempt (default: 30s)
	Timeout time.Duration
	// MaxRetries is the maximum number of physical attempts per call (default: 3)
	MaxRetries int
	// BaseBackoff is the first retry delay; it doubles per attempt (default: 200ms)
	BaseBackoff time.Duration
	// UserAgent identifies the client upstream
	UserAgent            string
	DefaultHeaders       map[string]string
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	// MaxResponseBytes caps how much of a response body is read (default: 10 MiB)
	MaxResponseBytes int64
	// SensitiveFields replaces the default header/query denylist used when logging
	SensitiveFields []string
	// HTTPClient overrides the transport. The default wraps http.DefaultTransport with otelhttp.
	HTTPClient *nethttp.Client
	// TracerProvider and MeterProvider default to the global OpenTelemetry providers
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Rand returns jitter samples in [0, 1) (default: math/rand/v2)
	Rand func() float64
}
