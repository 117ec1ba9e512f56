// Package lightspeed exposes the Lightspeed Retail (Vend) 2.0 API on top of
// the resilient httpclient. Every method is one call through the retry loop;
// errors come back unchanged so callers can inspect them with
// httpclient.IsErrorType.
package lightspeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vapeshed/cis-bricks/httpclient"
	"github.com/vapeshed/cis-bricks/logger"
)

const (
	instrumentationName = "github.com/vapeshed/cis-bricks/lightspeed"

	// DefaultPageSize is the page_size sent by FetchPaginated.
	DefaultPageSize = 200
	// DefaultMaxConcurrent bounds the number of resources Snapshot fetches at once.
	DefaultMaxConcurrent = 5
)

var (
	// ErrNilHTTPClient is returned by New without a transport client.
	ErrNilHTTPClient = errors.New("lightspeed: http client is required")
	// ErrEmptyID is returned when an entity id is blank.
	ErrEmptyID = errors.New("lightspeed: entity id is required")
	// ErrUnknownResource is returned for resource names Snapshot does not know.
	ErrUnknownResource = errors.New("lightspeed: unknown resource")
)

// Client is a typed Lightspeed API client.
type Client struct {
	http          httpclient.Client
	limiter       *rate.Limiter
	pageSize      int
	maxConcurrent int
	logger        logger.Logger
	tracer        trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit paces logical calls to rps requests per second with the given
// burst. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPageSize sets the page_size used by FetchPaginated.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxConcurrent bounds how many resources Snapshot fetches in parallel.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithLogger sets the logger for pagination and snapshot progress.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// New wraps hc with the Lightspeed entity operations.
func New(hc httpclient.Client, opts ...Option) (*Client, error) {
	if hc == nil {
		return nil, ErrNilHTTPClient
	}
	c := &Client{
		http:          hc,
		pageSize:      DefaultPageSize,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        logger.NewNop(),
		tracer:        otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PageSize reports the configured page size.
func (c *Client) PageSize() int { return c.pageSize }

// Get issues a raw GET against path, e.g. "outlets" or "products/123".
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*httpclient.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Get(ctx, path, query, nil)
}

// Post sends body to path with an idempotency key.
func (c *Client) Post(ctx context.Context, path string, body any) (*httpclient.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Post(ctx, path, body, &httpclient.Options{Idempotent: true})
}

// Put replaces the entity at path with an idempotency key.
func (c *Client) Put(ctx context.Context, path string, body any) (*httpclient.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Put(ctx, path, body, &httpclient.Options{Idempotent: true})
}

// Delete removes the entity at path.
func (c *Client) Delete(ctx context.Context, path string) (*httpclient.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Delete(ctx, path, nil)
}

// wait blocks until the limiter admits one call. Cancellation surfaces as a
// transport error like any other abandoned call.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return httpclient.NewTransportError("rate limiter wait aborted", err)
	}
	return nil
}

// entityPath joins a collection and an escaped id.
func entityPath(collection, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s: %w", collection, ErrEmptyID)
	}
	return collection + "/" + url.PathEscape(id), nil
}
