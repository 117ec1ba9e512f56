package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vapeshed/cis-bricks/config"
	"github.com/vapeshed/cis-bricks/lightspeed"
)

const testToken = "lsxs_pt_secret-token"

type fakeLightspeed struct {
	mu      sync.Mutex
	queries []string
	server  *httptest.Server
}

func newFakeLightspeed(t *testing.T) *fakeLightspeed {
	t.Helper()
	f := &fakeLightspeed{}
	mux := http.NewServeMux()
	respond := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.queries = append(f.queries, r.URL.Path+"?"+r.URL.RawQuery)
			f.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("GET /api/2.0/outlets", respond(`{"data":[{"id":"o-1","name":"Hamilton"}]}`))
	mux.HandleFunc("GET /api/2.0/brands", respond(`{"data":[{"id":"b-1"},{"id":"b-2"}]}`))
	mux.HandleFunc("GET /api/2.0/products", respond(`{"data":[]}`))
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLightspeed) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeLightspeed) environ(extra ...string) func() []string {
	vars := append([]string{
		"CIS_LIGHTSPEED_BASE_URL=" + f.server.URL + "/api/2.0",
		"CIS_LIGHTSPEED_TOKEN=" + testToken,
		"CIS_LIGHTSPEED_MAX_RETRIES=1",
		"CIS_LIGHTSPEED_BACKOFF=1ms",
	}, extra...)
	return func() []string { return vars }
}

type result struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	err    error
}

func run(t *testing.T, environ func() []string, args ...string) *result {
	t.Helper()
	res := &result{}
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	res.err = Execute(context.Background(), Options{
		Version: "1.2.3",
		Stdout:  &res.stdout,
		Stderr:  &res.stderr,
		Environ: environ,
	}, append([]string{"--config", configFile}, args...))
	return res
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Status    int             `json:"status"`
	RequestID string          `json:"request_id"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
}

func decodeEnvelope(t *testing.T, res *result) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(res.stdout.Bytes(), &env), res.stdout.String())
	return env
}

func TestVersionNeedsNoConfiguration(t *testing.T) {
	res := run(t, func() []string { return nil }, "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout.String(), "lsctl version 1.2.3")
}

func TestGetPrintsEnvelope(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "get", "outlets", "-q", "page_size=10", "-q", "deleted=false")
	require.NoError(t, res.err)

	env := decodeEnvelope(t, res)
	assert.True(t, env.Success)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.NotEmpty(t, env.RequestID)
	assert.JSONEq(t, `{"data":[{"id":"o-1","name":"Hamilton"}]}`, string(env.Data))
	assert.Equal(t, []string{"/api/2.0/outlets?deleted=false&page_size=10"}, api.seen())
}

func TestGetFailurePrintsEnvelopeAndFails(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "get", "registers")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, errCallFailed)
	assert.Equal(t, ExitFailure, ExitCode(context.Background(), res.err))

	env := decodeEnvelope(t, res)
	assert.False(t, env.Success)
	assert.Equal(t, http.StatusNotFound, env.Status)
	assert.Equal(t, "non_retryable_api", env.ErrorType)
	assert.Contains(t, res.stderr.String(), "Error: request failed")
}

func TestGetRejectsMalformedQuery(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "get", "outlets", "-q", "novalue")
	assert.ErrorContains(t, res.err, "expected key=value")
	assert.Empty(t, api.seen())
}

func TestOutlets(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "outlets")
	require.NoError(t, res.err)
	assert.True(t, decodeEnvelope(t, res).Success)
}

func TestLogsGoToStderrWithoutSecrets(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "outlets")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr.String(), "REST client request")
	assert.NotContains(t, res.stderr.String(), testToken)
	assert.NotContains(t, res.stdout.String(), "REST client")
}

func TestSnapshotArguments(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "snapshot", "outlets", "brands")
	require.NoError(t, res.err)

	env := decodeEnvelope(t, res)
	require.True(t, env.Success)
	var data map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data["outlets"], 1)
	assert.Len(t, data["brands"], 2)
}

func TestSnapshotUsesConfiguredResources(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ("CIS_SYNC_RESOURCES=brands"), "snapshot")
	require.NoError(t, res.err)

	var data map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, res).Data, &data))
	assert.Len(t, data, 1)
	assert.Contains(t, data, "brands")
}

func TestSnapshotUnknownResource(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "snapshot", "registers")
	assert.ErrorIs(t, res.err, lightspeed.ErrUnknownResource)
	assert.Empty(t, api.seen())
}

func TestSnapshotFailurePrintsEnvelope(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "snapshot", "outlets", "users")
	require.Error(t, res.err)

	env := decodeEnvelope(t, res)
	assert.False(t, env.Success)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestConfigMasksSecrets(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "config")
	require.NoError(t, res.err)

	var all map[string]any
	require.NoError(t, json.Unmarshal(res.stdout.Bytes(), &all))
	assert.Equal(t, "***", all["lightspeed.token"])
	assert.Equal(t, api.server.URL+"/api/2.0", all["lightspeed.base_url"])
	assert.NotContains(t, res.stdout.String(), testToken)
}

func TestConfigSingleKey(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "config", "lightspeed.base_url")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"lightspeed.base_url":"`+api.server.URL+`/api/2.0"}`, res.stdout.String())

	res = run(t, api.environ(), "config", "lightspeed.nope")
	var unknown *unknownKeyError
	assert.True(t, errors.As(res.err, &unknown))
}

func TestConfigSection(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "config", "lightspeed")
	require.NoError(t, res.err)

	var section map[string]any
	require.NoError(t, json.Unmarshal(res.stdout.Bytes(), &section))
	assert.Equal(t, "***", section["lightspeed.token"])
	assert.Equal(t, api.server.URL+"/api/2.0", section["lightspeed.base_url"])
	assert.Contains(t, section, "lightspeed.rate.burst")
	assert.NotContains(t, section, "app.name")
	assert.NotContains(t, res.stdout.String(), testToken)
}

func TestMissingConfigurationFails(t *testing.T) {
	res := run(t, func() []string { return []string{"CIS_LIGHTSPEED_TOKEN=" + testToken} }, "outlets")

	var cfgErr *config.ConfigError
	require.True(t, errors.As(res.err, &cfgErr))
	assert.Equal(t, "lightspeed.base_url", cfgErr.Field)
	assert.Empty(t, res.stdout.String())
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	api := newFakeLightspeed(t)

	res := run(t, api.environ(), "--log-level", "error", "outlets")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stderr.String(), "REST client request")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(context.Background(), nil))
	assert.Equal(t, ExitFailure, ExitCode(context.Background(), errors.New("boom")))
	assert.Equal(t, ExitCanceled, ExitCode(context.Background(), context.Canceled))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ExitCanceled, ExitCode(ctx, errors.New("request canceled")))
}

func TestCanceledContextExitsWith130(t *testing.T) {
	api := newFakeLightspeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := Execute(ctx, Options{Stdout: &stdout, Stderr: &stderr, Environ: api.environ()},
		[]string{"--config", filepath.Join(t.TempDir(), "config.yaml"), "outlets"})
	require.Error(t, err)
	assert.Equal(t, ExitCanceled, ExitCode(ctx, err))
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery([]string{"a=1", "a=2", "b="})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, q["a"])
	assert.Equal(t, "", q.Get("b"))

	q, err = parseQuery(nil)
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = parseQuery([]string{"=x"})
	assert.Error(t, err)
}
