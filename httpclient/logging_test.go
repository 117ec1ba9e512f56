package httpclient

import (
	"context"
	"maps"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vapeshed/cis-bricks/logger"
)

// Test constants to avoid string duplication
const (
	testContentType        = "application/json"
	testContentTypeHeader  = "Content-Type"
	testRestClientRequest  = "REST client request"
	testRestClientResponse = "REST client response"
)

// fakeLogEvent implements logger.LogEvent for testing
type fakeLogEvent struct {
	logger  *fakeLogger
	level   string
	fields  map[string]any
	message string
}

func (e *fakeLogEvent) Msg(msg string) {
	e.message = msg
	e.logger.events = append(e.logger.events, loggedEvent{
		level:   e.level,
		fields:  copyMap(e.fields),
		message: msg,
	})
}

func (e *fakeLogEvent) Msgf(format string, _ ...any) {
	// For testing, we'll just capture the format as the message
	e.Msg(format)
}

func (e *fakeLogEvent) Err(err error) logger.LogEvent {
	e.fields["error"] = err
	return e
}

func (e *fakeLogEvent) Str(key, value string) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int(key string, value int) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int64(key string, value int64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Uint64(key string, value uint64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Dur(key string, d time.Duration) logger.LogEvent {
	e.fields[key] = d
	return e
}

func (e *fakeLogEvent) Interface(key string, i any) logger.LogEvent {
	e.fields[key] = i
	return e
}

func (e *fakeLogEvent) Bytes(key string, val []byte) logger.LogEvent {
	e.fields[key] = val
	return e
}

// fakeLogger implements logger.Logger for testing
type fakeLogger struct {
	events []loggedEvent
}

type loggedEvent struct {
	level   string
	fields  map[string]any
	message string
}

func (l *fakeLogger) Info() logger.LogEvent {
	return &fakeLogEvent{
		logger: l,
		level:  "info",
		fields: make(map[string]any),
	}
}

func (l *fakeLogger) Error() logger.LogEvent {
	return &fakeLogEvent{
		logger: l,
		level:  "error",
		fields: make(map[string]any),
	}
}

func (l *fakeLogger) Debug() logger.LogEvent {
	return &fakeLogEvent{
		logger: l,
		level:  "debug",
		fields: make(map[string]any),
	}
}

func (l *fakeLogger) Warn() logger.LogEvent {
	return &fakeLogEvent{
		logger: l,
		level:  "warn",
		fields: make(map[string]any),
	}
}

func (l *fakeLogger) Fatal() logger.LogEvent {
	return &fakeLogEvent{
		logger: l,
		level:  "fatal",
		fields: make(map[string]any),
	}
}

func (l *fakeLogger) WithContext(_ any) logger.Logger {
	// For testing, return the same logger
	return l
}

func (l *fakeLogger) WithFields(_ map[string]any) logger.Logger {
	// For testing, return the same logger
	return l
}

func (l *fakeLogger) eventsByLevel(level string) []loggedEvent {
	var events []loggedEvent
	for _, event := range l.events {
		if event.level == level {
			events = append(events, event)
		}
	}
	return events
}

// Helper function to copy maps for test isolation
func copyMap(original map[string]any) map[string]any {
	return maps.Clone(original)
}

func testCall(method, rawURL string) *call {
	return &call{method: method, url: rawURL, requestID: "20260101120000-0123456789abcdef"}
}

// TestClientLogRequest tests the logRequest method
func TestClientLogRequest(t *testing.T) {
	t.Run("basic request logging", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{
				LogPayloads:        false,
				MaxPayloadLogBytes: 1024,
			},
		}

		req, err := http.NewRequestWithContext(context.Background(), "POST", "https://api.example.com/products", http.NoBody)
		assert.NoError(t, err)
		req.Header.Set("Authorization", "Bearer token")
		req.Header.Set(testContentTypeHeader, testContentType)

		body := []byte(`{"name": "test product"}`)
		c.logRequest(req, body, "test-request-123")

		infoEvents := fakeLog.eventsByLevel("info")
		assert.Len(t, infoEvents, 1)

		infoEvent := infoEvents[0]
		assert.Equal(t, testRestClientRequest, infoEvent.message)
		assert.Equal(t, "outbound", infoEvent.fields["direction"])
		assert.Equal(t, "POST", infoEvent.fields["method"])
		assert.Equal(t, "https://api.example.com/products", infoEvent.fields["url"])
		assert.Equal(t, "test-request-123", infoEvent.fields["request_id"])
		assert.Equal(t, 1, infoEvent.fields["attempt"])
		assert.Equal(t, 2, infoEvent.fields["header_count"])
		assert.Equal(t, len(body), infoEvent.fields["body_size"])

		assert.Len(t, fakeLog.eventsByLevel("debug"), 0)
	})

	t.Run("request with empty body", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{LogPayloads: false},
		}

		req, err := http.NewRequestWithContext(context.Background(), "GET", "https://api.example.com/outlets", http.NoBody)
		assert.NoError(t, err)

		c.logRequest(req, nil, "request-456")

		infoEvents := fakeLog.eventsByLevel("info")
		assert.Len(t, infoEvents, 1)

		infoEvent := infoEvents[0]
		assert.Equal(t, "GET", infoEvent.fields["method"])
		assert.Equal(t, "request-456", infoEvent.fields["request_id"])
		_, hasBodySize := infoEvent.fields["body_size"]
		assert.False(t, hasBodySize)
		_, hasHeaderCount := infoEvent.fields["header_count"]
		assert.False(t, hasHeaderCount)
	})

	t.Run("sensitive query parameters are masked", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{}}

		req, err := http.NewRequestWithContext(context.Background(), "GET", "https://api.example.com/sales?token=abc&page_size=200", http.NoBody)
		assert.NoError(t, err)

		c.logRequest(req, nil, "request-mask")

		infoEvent := fakeLog.eventsByLevel("info")[0]
		assert.Equal(t, "https://api.example.com/sales?page_size=200&token=***", infoEvent.fields["url"])
		assert.NotContains(t, infoEvent.fields["url"], "abc")
	})

	t.Run("request with payload logging enabled", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{
				LogPayloads:        true,
				MaxPayloadLogBytes: 50,
			},
		}

		req, err := http.NewRequestWithContext(context.Background(), "PUT", "https://api.example.com/customers/1", http.NoBody)
		assert.NoError(t, err)
		req.Header.Set("X-API-Key", "secret")
		req.Header.Set("Authorization", "Bearer super-secret")
		req.Header.Set("Accept", testContentType)

		body := []byte(`{"data": "some content for testing"}`)
		c.logRequest(req, body, "request-789")

		assert.Len(t, fakeLog.eventsByLevel("info"), 1)
		debugEvents := fakeLog.eventsByLevel("debug")
		assert.Len(t, debugEvents, 1)

		debugEvent := debugEvents[0]
		assert.Equal(t, testRestClientRequest, debugEvent.message)
		assert.Equal(t, "outbound", debugEvent.fields["direction"])
		assert.Equal(t, "request-789", debugEvent.fields["request_id"])
		assert.Equal(t, len(body), debugEvent.fields["body_size"])
		assert.Equal(t, "false", debugEvent.fields["body_truncated"])
		assert.Equal(t, body, debugEvent.fields["body_preview"])

		headers, ok := debugEvent.fields["headers"].(map[string]string)
		assert.True(t, ok)
		assert.Equal(t, "***", headers["X-Api-Key"])
		assert.Equal(t, "***", headers["Authorization"])
		assert.Equal(t, testContentType, headers["Accept"])
	})

	t.Run("request with large body truncation", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{
				LogPayloads:        true,
				MaxPayloadLogBytes: 10,
			},
		}

		req, err := http.NewRequestWithContext(context.Background(), "POST", "https://api.example.com/consignments", http.NoBody)
		assert.NoError(t, err)

		largeBody := []byte("This is a very long body that should be truncated for logging purposes")
		c.logRequest(req, largeBody, "request-truncate")

		debugEvent := fakeLog.eventsByLevel("debug")[0]
		assert.Equal(t, len(largeBody), debugEvent.fields["body_size"])
		assert.Equal(t, "true", debugEvent.fields["body_truncated"])
		assert.Equal(t, largeBody[:10], debugEvent.fields["body_preview"])
	})

	t.Run("request body preview masks sensitive JSON keys", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{LogPayloads: true, MaxPayloadLogBytes: 200},
		}

		req, err := http.NewRequestWithContext(context.Background(), "POST", "https://api.example.com/customers", http.NoBody)
		assert.NoError(t, err)

		body := []byte(`{"email":"a@example.com","password":"hunter2","items":[{"api_key":"k-1","qty":2}]}`)
		c.logRequest(req, body, "request-mask")

		debugEvent := fakeLog.eventsByLevel("debug")[0]
		assert.Equal(t, len(body), debugEvent.fields["body_size"])
		assert.JSONEq(t,
			`{"email":"a@example.com","password":"***","items":[{"api_key":"***","qty":2}]}`,
			string(debugEvent.fields["body_preview"].([]byte)))
	})

	t.Run("request with zero MaxPayloadLogBytes uses default", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{
				LogPayloads:        true,
				MaxPayloadLogBytes: 0,
			},
		}

		req, err := http.NewRequestWithContext(context.Background(), "POST", "https://api.example.com/test", http.NoBody)
		assert.NoError(t, err)

		largeBody := make([]byte, 1500)
		for i := range largeBody {
			largeBody[i] = byte('A' + (i % 26))
		}

		c.logRequest(req, largeBody, "request-default")

		debugEvent := fakeLog.eventsByLevel("debug")[0]
		assert.Equal(t, "true", debugEvent.fields["body_truncated"])
		assert.Equal(t, largeBody[:1024], debugEvent.fields["body_preview"])
	})
}

// TestClientLogResponse tests the logResponse method
func TestClientLogResponse(t *testing.T) {
	t.Run("basic response logging", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{MaxPayloadLogBytes: 1024},
		}

		response := &Response{
			StatusCode: 200,
			Body:       []byte(`{"success": true}`),
			Headers:    http.Header{testContentTypeHeader: []string{testContentType}},
			RequestID:  "request-response-123",
			Stats: Stats{
				ElapsedTime: 250 * time.Millisecond,
				Attempts:    2,
			},
		}

		c.logResponse(testCall("GET", "https://api.example.com/products?page_size=200"), response)

		infoEvents := fakeLog.eventsByLevel("info")
		assert.Len(t, infoEvents, 1)

		infoEvent := infoEvents[0]
		assert.Equal(t, testRestClientResponse, infoEvent.message)
		assert.Equal(t, "inbound", infoEvent.fields["direction"])
		assert.Equal(t, "GET", infoEvent.fields["method"])
		assert.Equal(t, "https://api.example.com/products?page_size=200", infoEvent.fields["url"])
		assert.Equal(t, 200, infoEvent.fields["status"])
		assert.Equal(t, 250*time.Millisecond, infoEvent.fields["elapsed"])
		assert.Equal(t, 2, infoEvent.fields["attempt"])
		assert.Equal(t, "request-response-123", infoEvent.fields["request_id"])
		assert.Equal(t, len(response.Body), infoEvent.fields["body_size"])

		assert.Len(t, fakeLog.eventsByLevel("debug"), 0)
	})

	t.Run("response with empty body", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{}}

		response := &Response{
			StatusCode: 204,
			Headers:    http.Header{},
			RequestID:  "request-empty",
			Stats:      Stats{ElapsedTime: 100 * time.Millisecond, Attempts: 1},
		}

		c.logResponse(testCall("DELETE", "https://api.example.com/products/1"), response)

		infoEvent := fakeLog.eventsByLevel("info")[0]
		assert.Equal(t, 204, infoEvent.fields["status"])
		_, hasBodySize := infoEvent.fields["body_size"]
		assert.False(t, hasBodySize)
	})

	t.Run("response with payload logging enabled", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{
			logger: fakeLog,
			config: &Config{LogPayloads: true, MaxPayloadLogBytes: 100},
		}

		response := &Response{
			StatusCode: 201,
			Body:       []byte(`{"id": 123, "created": true}`),
			Headers:    http.Header{"X-Rate-Limit": []string{"100"}, "Set-Cookie": []string{"session=abc"}},
			RequestID:  "request-debug",
			Stats:      Stats{ElapsedTime: 300 * time.Millisecond, Attempts: 1},
		}

		c.logResponse(testCall("POST", "https://api.example.com/products"), response)

		debugEvents := fakeLog.eventsByLevel("debug")
		assert.Len(t, debugEvents, 1)

		debugEvent := debugEvents[0]
		assert.Equal(t, testRestClientResponse, debugEvent.message)
		assert.Equal(t, 201, debugEvent.fields["status"])
		assert.Equal(t, "false", debugEvent.fields["body_truncated"])
		assert.Equal(t, response.Body, debugEvent.fields["body_preview"])

		headers := debugEvent.fields["headers"].(map[string]string)
		assert.Equal(t, "100", headers["X-Rate-Limit"])
		assert.Equal(t, "***", headers["Set-Cookie"])
	})
}

func TestClientLogRetry(t *testing.T) {
	fakeLog := &fakeLogger{}
	c := &client{logger: fakeLog, config: &Config{MaxRetries: 3}}

	cl := testCall("GET", "https://api.example.com/sales?access_token=xyz")
	err := NewAPIError(503, []byte("upstream\n  unavailable"))
	c.logRetry(cl, 1, 503, err, 200*time.Millisecond, []byte("upstream\n  unavailable"))

	warnEvents := fakeLog.eventsByLevel("warn")
	assert.Len(t, warnEvents, 1)

	event := warnEvents[0]
	assert.Equal(t, "REST client retry scheduled", event.message)
	assert.Equal(t, cl.requestID, event.fields["request_id"])
	assert.Equal(t, 1, event.fields["attempt"])
	assert.Equal(t, 3, event.fields["max_attempts"])
	assert.Equal(t, 503, event.fields["status"])
	assert.Equal(t, 200*time.Millisecond, event.fields["backoff"])
	assert.Equal(t, "upstream unavailable", event.fields["body_excerpt"])
	assert.Equal(t, "https://api.example.com/sales?access_token=***", event.fields["url"])
	assert.Equal(t, err, event.fields["error"])
}

func TestClientLogRetryTransportFailure(t *testing.T) {
	fakeLog := &fakeLogger{}
	c := &client{logger: fakeLog, config: &Config{MaxRetries: 3}}

	err := NewTransportError("request failed", assert.AnError)
	c.logRetry(testCall("GET", "https://api.example.com/outlets"), 2, 0, err, time.Second, nil)

	event := fakeLog.eventsByLevel("warn")[0]
	_, hasStatus := event.fields["status"]
	assert.False(t, hasStatus)
	_, hasExcerpt := event.fields["body_excerpt"]
	assert.False(t, hasExcerpt)
	assert.Equal(t, 2, event.fields["attempt"])
}

func TestClientLogFailure(t *testing.T) {
	fakeLog := &fakeLogger{}
	c := &client{logger: fakeLog, config: &Config{MaxRetries: 3}}

	resp := &Response{StatusCode: 404, Stats: Stats{Attempts: 1, ElapsedTime: 5 * time.Millisecond}}
	err := NewAPIError(404, []byte(`{"error":"not found"}`))
	c.logFailure(testCall("GET", "https://api.example.com/products/missing"), resp, err)

	errorEvents := fakeLog.eventsByLevel("error")
	assert.Len(t, errorEvents, 1)

	event := errorEvents[0]
	assert.Equal(t, "REST client request failed", event.message)
	assert.Equal(t, 404, event.fields["status"])
	assert.Equal(t, 1, event.fields["attempt"])
	assert.Equal(t, "non_retryable_api", event.fields["error_type"])
	assert.Equal(t, "GET", event.fields["method"])
}

func TestBodyExcerpt(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		limit int
		want  string
	}{
		{name: "empty", body: nil, limit: 10, want: ""},
		{name: "short", body: []byte("bad gateway"), limit: 64, want: "bad gateway"},
		{name: "collapses whitespace", body: []byte("a\n\tb   c"), limit: 64, want: "a b c"},
		{name: "truncated", body: []byte("abcdefghij"), limit: 4, want: "abcd..."},
		{name: "rune boundary", body: []byte("héllo"), limit: 2, want: "h..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bodyExcerpt(tt.body, tt.limit))
		})
	}
}
