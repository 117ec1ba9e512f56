package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vapeshed/cis-bricks/logger"
)

const (
	logMsgRequest  = "REST client request"
	logMsgResponse = "REST client response"
	logMsgRetry    = "REST client retry scheduled"
	logMsgFailure  = "REST client request failed"
)

// logFilter returns the client's filter, falling back to the default denylist.
func (c *client) logFilter() *logger.SensitiveDataFilter {
	if c.filter == nil {
		return logger.NewSensitiveDataFilter(nil)
	}
	return c.filter
}

func (c *client) payloadLimit() int {
	if c.config == nil || c.config.MaxPayloadLogBytes <= 0 {
		return defaultMaxPayloadLogBytes
	}
	return c.config.MaxPayloadLogBytes
}

func (c *client) logPayloads() bool {
	return c.config != nil && c.config.LogPayloads
}

// logRequest records the first attempt of a call. Headers and body are only
// logged at debug level when payload logging is enabled.
func (c *client) logRequest(req *nethttp.Request, body []byte, requestID string) {
	filter := c.logFilter()
	maskedURL := filter.FilterURL(req.URL.String())

	event := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", maskedURL).
		Str("request_id", requestID).
		Int("attempt", 1)
	if len(req.Header) > 0 {
		event = event.Int("header_count", len(req.Header))
	}
	if len(body) > 0 {
		event = event.Int("body_size", len(body))
	}
	event.Msg(logMsgRequest)

	if !c.logPayloads() {
		return
	}
	preview, truncated := c.bodyPreview(body)
	c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", maskedURL).
		Str("request_id", requestID).
		Interface("headers", filter.FilterHeaders(req.Header)).
		Int("body_size", len(body)).
		Str("body_truncated", boolString(truncated)).
		Bytes("body_preview", preview).
		Msg(logMsgRequest)
}

// logResponse records a successful call.
func (c *client) logResponse(cl *call, resp *Response) {
	filter := c.logFilter()
	maskedURL := filter.FilterURL(cl.url)

	event := c.logger.Info().
		Str("direction", "inbound").
		Str("method", cl.method).
		Str("url", maskedURL).
		Str("request_id", resp.RequestID).
		Int("attempt", resp.Stats.Attempts).
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime)
	if len(resp.Body) > 0 {
		event = event.Int("body_size", len(resp.Body))
	}
	event.Msg(logMsgResponse)

	if !c.logPayloads() {
		return
	}
	preview, truncated := c.bodyPreview(resp.Body)
	c.logger.Debug().
		Str("direction", "inbound").
		Str("method", cl.method).
		Str("url", maskedURL).
		Str("request_id", resp.RequestID).
		Int("status", resp.StatusCode).
		Interface("headers", filter.FilterHeaders(resp.Headers)).
		Int("body_size", len(resp.Body)).
		Str("body_truncated", boolString(truncated)).
		Bytes("body_preview", preview).
		Msg(logMsgResponse)
}

// logRetry records a retryable failure and the wait before the next attempt.
func (c *client) logRetry(cl *call, attempt, status int, err error, backoff time.Duration, body []byte) {
	event := c.logger.Warn().
		Str("method", cl.method).
		Str("url", c.logFilter().FilterURL(cl.url)).
		Str("request_id", cl.requestID).
		Int("attempt", attempt).
		Int("max_attempts", c.config.MaxRetries).
		Dur("backoff", backoff)
	if status > 0 {
		event = event.Int("status", status).
			Str("body_excerpt", bodyExcerpt(maskBody(c.logFilter(), body), maxErrorBodyExcerpt))
	}
	event.Err(err).Msg(logMsgRetry)
}

// logFailure records the terminal error of a call.
func (c *client) logFailure(cl *call, resp *Response, err error) {
	event := c.logger.Error().
		Str("method", cl.method).
		Str("url", c.logFilter().FilterURL(cl.url)).
		Str("request_id", cl.requestID).
		Int("attempt", resp.Stats.Attempts).
		Str("error_type", errorTypeName(err)).
		Dur("elapsed", resp.Stats.ElapsedTime)
	if resp.StatusCode > 0 {
		event = event.Int("status", resp.StatusCode)
	}
	event.Err(err).Msg(logMsgFailure)
}

func errorTypeName(err error) string {
	var ce ClientError
	if errors.As(err, &ce) {
		return ce.Type().String()
	}
	return "unknown"
}

// bodyPreview masks sensitive keys of a JSON payload, then truncates it.
func (c *client) bodyPreview(body []byte) ([]byte, bool) {
	return truncate(maskBody(c.logFilter(), body), c.payloadLimit())
}

// maskBody masks sensitive keys when body is a single JSON document. Bodies
// that are not JSON or hold nothing sensitive are returned unchanged.
func maskBody(filter *logger.SensitiveDataFilter, body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil || dec.More() {
		return body
	}
	filtered := filter.FilterValue("", doc)
	if reflect.DeepEqual(doc, filtered) {
		return body
	}
	masked, err := json.Marshal(filtered)
	if err != nil {
		return []byte(filter.MaskValue())
	}
	return masked
}

func truncate(body []byte, limit int) ([]byte, bool) {
	if len(body) <= limit {
		return body, false
	}
	return body[:limit], true
}

// bodyExcerpt returns at most limit bytes of body as a single-line string,
// cut on a rune boundary.
func bodyExcerpt(body []byte, limit int) string {
	if len(body) == 0 {
		return ""
	}
	excerpt := body
	suffix := ""
	if len(excerpt) > limit {
		excerpt = excerpt[:limit]
		for len(excerpt) > 0 && !utf8.Valid(excerpt) {
			excerpt = excerpt[:len(excerpt)-1]
		}
		suffix = "..."
	}
	return strings.Join(strings.Fields(string(excerpt)), " ") + suffix
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
