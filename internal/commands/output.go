package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vapeshed/cis-bricks/httpclient"
)

// errCallFailed is returned after a failed call's envelope has been printed.
var errCallFailed = errors.New("request failed")

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeEnvelope prints the envelope for a call and turns a failure into an
// error that keeps the original cause reachable with errors.Is.
func writeEnvelope(w io.Writer, resp *httpclient.Response, callErr error) error {
	if err := writeJSON(w, httpclient.NewEnvelope(resp, callErr)); err != nil {
		return err
	}
	if callErr != nil {
		return fmt.Errorf("%w: %w", errCallFailed, callErr)
	}
	return nil
}

// dataEnvelope wraps locally assembled data, such as a multi-resource
// snapshot, in the same envelope shape.
func dataEnvelope(data any) (*httpclient.Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &httpclient.Envelope{Success: true, Data: raw, Status: http.StatusOK}, nil
}
