package httpclient

import (
	"encoding/json"
	"strings"
)

// Envelope is the uniform result shape handed to consumers of the client.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Status    int             `json:"status"`
	RequestID string          `json:"request_id"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
	Attempts  int             `json:"attempts,omitempty"`
}

// NewEnvelope folds a call result into an Envelope. Data holds the parsed
// response body, a JSON string when the body is not JSON, or null when empty.
// A failed call keeps the last status (0 when no response arrived) and the
// error message.
func NewEnvelope(resp *Response, err error) *Envelope {
	env := &Envelope{Success: err == nil, Data: json.RawMessage("null")}
	if resp != nil {
		env.Status = resp.StatusCode
		env.RequestID = resp.RequestID
		env.Attempts = resp.Stats.Attempts
		env.Data = envelopeData(resp.Body)
	}
	if err != nil {
		env.Error = err.Error()
		env.ErrorType = errorTypeName(err)
		if env.Status == 0 {
			env.Status = StatusCodeOf(err)
		}
	}
	return env
}

func envelopeData(body []byte) json.RawMessage {
	if len(strings.TrimSpace(string(body))) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return json.RawMessage("null")
	}
	return quoted
}
