package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/vapeshed/cis-bricks/logger"
	cistrace "github.com/vapeshed/cis-bricks/trace"
)

// client implements the Client interface
type client struct {
	baseURL    *url.URL
	httpClient *nethttp.Client
	logger     logger.Logger
	filter     *logger.SensitiveDataFilter
	config     *Config
	telemetry  *telemetry
	rand       func() float64
}

// call is the immutable description of one logical request shared by all its attempts.
type call struct {
	method         string
	url            string
	body           []byte
	headers        map[string]string
	timeout        time.Duration
	requestID      string
	idempotencyKey string
}

// attemptResult is what one physical attempt observed.
type attemptResult struct {
	statusCode int
	body       []byte
	headers    nethttp.Header
}

// New creates a client for a single upstream API. It fails with a
// ConfigurationError, before any network I/O, when the base URL or token is
// missing or the base URL is not an absolute http(s) URL. A nil logger
// discards all output.
func New(cfg Config, log logger.Logger) (Client, error) {
	baseURL, err := validateConfig(&cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if log == nil {
		log = logger.NewNop()
	}

	filterConfig := logger.DefaultFilterConfig()
	if len(cfg.SensitiveFields) > 0 {
		filterConfig.SensitiveFields = cfg.SensitiveFields
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &nethttp.Client{
			Transport: otelhttp.NewTransport(
				nethttp.DefaultTransport,
				otelhttp.WithTracerProvider(cfg.TracerProvider),
				otelhttp.WithMeterProvider(cfg.MeterProvider),
			),
		}
	}

	return &client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     log,
		filter:     logger.NewSensitiveDataFilter(filterConfig),
		config:     &cfg,
		telemetry:  newTelemetry(cfg.TracerProvider, cfg.MeterProvider),
		rand:       cfg.Rand,
	}, nil
}

func validateConfig(cfg *Config) (*url.URL, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, NewConfigurationError("base_url", "base URL is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, NewConfigurationError("token", "bearer token is required")
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, NewConfigurationError("base_url", fmt.Sprintf("invalid base URL: %v", err))
	}
	if (baseURL.Scheme != "http" && baseURL.Scheme != "https") || baseURL.Host == "" {
		return nil, NewConfigurationError("base_url", "base URL must be an absolute http(s) URL")
	}
	if cfg.MaxRetries < 0 {
		return nil, NewConfigurationError("max_retries", "must not be negative")
	}
	return baseURL, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxPayloadLogBytes <= 0 {
		cfg.MaxPayloadLogBytes = defaultMaxPayloadLogBytes
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, path string, query url.Values, opts *Options) (*Response, error) {
	return c.Do(ctx, &Request{Method: nethttp.MethodGet, Path: path, Query: query, Options: optionsOrZero(opts)})
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, path string, body any, opts *Options) (*Response, error) {
	return c.Do(ctx, &Request{Method: nethttp.MethodPost, Path: path, Body: body, Options: optionsOrZero(opts)})
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, path string, body any, opts *Options) (*Response, error) {
	return c.Do(ctx, &Request{Method: nethttp.MethodPut, Path: path, Body: body, Options: optionsOrZero(opts)})
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, path string, body any, opts *Options) (*Response, error) {
	return c.Do(ctx, &Request{Method: nethttp.MethodPatch, Path: path, Body: body, Options: optionsOrZero(opts)})
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, path string, opts *Options) (*Response, error) {
	return c.Do(ctx, &Request{Method: nethttp.MethodDelete, Path: path, Options: optionsOrZero(opts)})
}

// Do performs a request with the given method
func (c *client) Do(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return nil, NewValidationError("request is required", "")
	}
	cl, err := c.prepare(ctx, req)
	if err != nil {
		return &Response{RequestID: cistrace.EnsureRequestID(ctx)}, err
	}
	return c.execute(ctx, cl)
}

func optionsOrZero(opts *Options) Options {
	if opts == nil {
		return Options{}
	}
	return *opts
}

// prepare resolves everything that stays fixed across attempts.
func (c *client) prepare(ctx context.Context, req *Request) (*call, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		return nil, NewValidationError("method is required", "method")
	}
	fullURL, err := c.resolveURL(req.Path, req.Query)
	if err != nil {
		return nil, NewValidationError(err.Error(), "path")
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("body is not serializable: %v", err), "body")
	}

	cl := &call{
		method:    method,
		url:       fullURL,
		body:      body,
		headers:   req.Options.Headers,
		timeout:   c.config.Timeout,
		requestID: cistrace.EnsureRequestID(ctx),
	}
	if req.Options.Timeout > 0 {
		cl.timeout = req.Options.Timeout
	}
	if req.Options.Idempotent && supportsIdempotency(method) {
		cl.idempotencyKey = IdempotencyKey(method, fullURL, body)
	}
	return cl, nil
}

// resolveURL joins path onto the base URL and merges query parameters.
// The query is encoded in sorted key order so the URL is deterministic.
func (c *client) resolveURL(path string, query url.Values) (string, error) {
	var u *url.URL
	parsed, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if parsed.IsAbs() {
		u = parsed
	} else {
		base := *c.baseURL
		base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(parsed.Path, "/")
		base.RawPath = ""
		base.RawQuery = parsed.RawQuery
		base.Fragment = ""
		u = &base
	}

	if len(query) > 0 {
		merged := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	} else if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

// execute is the single retry loop behind every verb.
// State machine: INIT -> ATTEMPTING -> SUCCESS | RETRY_WAIT -> ATTEMPTING | TERMINAL_FAILURE.
func (c *client) execute(ctx context.Context, cl *call) (*Response, error) {
	ctx, span := c.telemetry.startCall(ctx, cl, c.logFilter().FilterURL(cl.url))
	state := newRetryState(c.config.MaxRetries, c.config.BaseBackoff)
	resp := &Response{RequestID: cl.requestID, IdempotencyKey: cl.idempotencyKey}

	finish := func(err error) (*Response, error) {
		resp.Stats = Stats{ElapsedTime: state.elapsed(), Attempts: state.attempt}
		c.telemetry.endCall(ctx, span, cl, resp, err)
		if err != nil {
			c.logFailure(cl, resp, err)
			return resp, err
		}
		c.logResponse(cl, resp)
		return resp, nil
	}

	var lastErr error
	for state.next() {
		result, err := c.attempt(ctx, cl, state.attempt)
		if err != nil && ctx.Err() != nil {
			return finish(NewTransportError("request canceled", ctx.Err()))
		}

		status := 0
		if result != nil {
			status = result.statusCode
			resp.StatusCode = result.statusCode
			resp.Body = result.body
			resp.Headers = result.headers
		} else {
			resp.StatusCode = 0
			resp.Body = nil
			resp.Headers = nil
		}

		outcome := Classify(status, err)
		c.telemetry.recordAttempt(ctx, span, cl, state.attempt, status, outcome, err)

		switch outcome {
		case OutcomeSuccess:
			return finish(nil)
		case OutcomeNonRetryable:
			return finish(newAPIError(status, resp.Body, c.logFilter()))
		case OutcomeFatal:
			return finish(err)
		}

		if err == nil {
			err = newAPIError(status, resp.Body, c.logFilter())
		}
		lastErr = err
		if state.exhausted() {
			break
		}

		delay := state.backoff(c.rand)
		c.logRetry(cl, state.attempt, status, err, delay, resp.Body)
		if werr := wait(ctx, delay); werr != nil {
			return finish(NewTransportError("request canceled during backoff", werr))
		}
	}

	return finish(NewRetriesExhaustedError(state.attempt, lastErr))
}

// attempt performs one physical HTTP exchange bounded by the call timeout.
// The body is read fully before the attempt context is released.
func (c *client) attempt(ctx context.Context, cl *call, attempt int) (*attemptResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, cl.timeout)
	defer cancel()

	var body io.Reader = nethttp.NoBody
	if len(cl.body) > 0 {
		body = bytes.NewReader(cl.body)
	}
	req, err := nethttp.NewRequestWithContext(attemptCtx, cl.method, cl.url, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to build request: %v", err), "")
	}
	c.applyHeaders(req, cl)

	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(attemptCtx, req); err != nil {
			return nil, c.interceptorFailure(attemptCtx, "request", cl.timeout, err)
		}
	}

	if attempt == 1 {
		c.logRequest(req, cl.body, cl.requestID)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(attemptCtx, "request failed", cl.timeout, err)
	}
	defer httpResp.Body.Close()

	for _, interceptor := range c.config.ResponseInterceptors {
		if err := interceptor(attemptCtx, req, httpResp); err != nil {
			return nil, c.interceptorFailure(attemptCtx, "response", cl.timeout, err)
		}
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, c.transportFailure(attemptCtx, "failed to read response body", cl.timeout, err)
	}
	if int64(len(data)) > c.config.MaxResponseBytes {
		return nil, NewValidationError(fmt.Sprintf("response body exceeds %d bytes", c.config.MaxResponseBytes), "body")
	}

	return &attemptResult{statusCode: httpResp.StatusCode, body: data, headers: httpResp.Header}, nil
}

// applyHeaders sets caller headers first so the fixed headers always win.
func (c *client) applyHeaders(req *nethttp.Request, cl *call) {
	for k, v := range c.config.DefaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set(HeaderXRequestID, cl.requestID)
	if cl.idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, cl.idempotencyKey)
	} else {
		req.Header.Del(HeaderIdempotencyKey)
	}
}

// transportFailure wraps a network error, marking attempt timeouts. The URL
// carried by net/http errors is masked so it is safe to log and return.
func (c *client) transportFailure(attemptCtx context.Context, message string, timeout time.Duration, err error) error {
	err = c.maskURLError(err)
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(message, timeout, err)
	}
	return NewTransportError(message, err)
}

func (c *client) maskURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	masked := *urlErr
	masked.URL = c.logFilter().FilterURL(urlErr.URL)
	return &masked
}

// interceptorFailure keeps attempt timeouts retryable; anything else is fatal.
func (c *client) interceptorFailure(attemptCtx context.Context, stage string, timeout time.Duration, err error) error {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(stage+" interceptor timed out", timeout, err)
	}
	return NewInterceptorError(stage+" interceptor failed", stage, err)
}
