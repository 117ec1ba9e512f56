package httpclient

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// IdempotencyKey derives a stable key from method, full URL and body:
// hex(sha256(METHOD|url|canonical-body)). JSON bodies are canonicalized to
// sorted-key form first so key order in the payload does not change the key.
func IdempotencyKey(method, fullURL string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(fullURL))
	h.Write([]byte{'|'})
	h.Write(canonicalJSON(body))
	return hex.EncodeToString(h.Sum(nil))
}

// supportsIdempotency reports whether an Idempotency-Key is meaningful for method.
func supportsIdempotency(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// canonicalJSON re-encodes valid JSON with object keys sorted and insignificant
// whitespace removed. Anything else is returned unchanged.
func canonicalJSON(body []byte) []byte {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return body
	}
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return out
}

// encodeBody serializes a request body. []byte, json.RawMessage and string
// are sent as-is; everything else goes through encoding/json.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}
