package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/flood-context-service/internal/adapter/http"
	"github.com/couchcryptid/flood-context-service/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakeAsker struct {
	result domain.AskResult
	err    error
	query  string
}

func (f *fakeAsker) Process(_ context.Context, query string) (domain.AskResult, error) {
	f.query = query
	return f.result, f.err
}

type fakeSink struct {
	mu      sync.Mutex
	results []domain.AskResult
	err     error
}

func (f *fakeSink) Publish(_ context.Context, result domain.AskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func newTestServer(readyErr error, asker httpadapter.Asker, sinks ...domain.ResultSink) *httpadapter.Server {
	if asker == nil {
		asker = &fakeAsker{}
	}
	return httpadapter.NewServer(":0", asker, &mockReadiness{err: readyErr}, sinks, time.Minute, slog.Default())
}

func ask(t *testing.T, srv *httpadapter.Server, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("store unreachable"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAskReturnsResult(t *testing.T) {
	asker := &fakeAsker{result: domain.AskResult{
		QueryID: "q-1",
		Query:   "Flood risk in Tuscaloosa?",
		Answer:  "Tuscaloosa County has moderate flood history.",
		Highlight: &domain.CountyRef{
			FIPSCode: "01125", CountyName: "Tuscaloosa", StateName: "Alabama",
		},
	}}
	sink := &fakeSink{}
	srv := newTestServer(nil, asker, sink)

	rec, body := ask(t, srv, `{"query":"Flood risk in Tuscaloosa?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Flood risk in Tuscaloosa?", asker.query)
	assert.Equal(t, "q-1", body["query_id"])
	highlight, ok := body["highlight"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "01125", highlight["fips_code"])

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, 1, sink.count())
}

func TestAskSinkFailureDoesNotAffectResponse(t *testing.T) {
	sink := &fakeSink{err: fmt.Errorf("bucket gone")}
	srv := newTestServer(nil, &fakeAsker{result: domain.AskResult{QueryID: "q-2"}}, sink)

	rec, _ := ask(t, srv, `{"query":"anything"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, 1, sink.count())
}

func TestAskErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"ambiguous", domain.Ambiguous("resolve", domain.ErrNoLocation), http.StatusUnprocessableEntity, "input_ambiguous"},
		{"empty query", domain.Ambiguous("ask", domain.ErrEmptyQuery), http.StatusUnprocessableEntity, "input_ambiguous"},
		{"upstream", domain.Unavailable("retrieve", fmt.Errorf("connection refused")), http.StatusBadGateway, "upstream_unavailable"},
		{"timeout", domain.Unavailable("generate", context.DeadlineExceeded), http.StatusGatewayTimeout, "upstream_unavailable"},
		{"malformed", domain.Malformed("intent", fmt.Errorf("not json")), http.StatusBadGateway, "malformed_model_output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			srv := newTestServer(nil, &fakeAsker{err: tt.err}, sink)

			rec, body := ask(t, srv, `{"query":"where?"}`)

			assert.Equal(t, tt.status, rec.Code)
			detail, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.kind, detail["kind"])
			assert.Equal(t, domain.UserMessage(tt.err), detail["message"])
			assert.NotContains(t, detail["message"], "connection refused")

			require.NoError(t, srv.Shutdown(context.Background()))
			assert.Zero(t, sink.count())
		})
	}
}

func TestAskRejectsInvalidBody(t *testing.T) {
	asker := &fakeAsker{}
	srv := newTestServer(nil, asker)

	rec, body := ask(t, srv, `query=flood`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "invalid_request", detail["kind"])
	assert.Empty(t, asker.query)
}

func TestAskRejectsGet(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/ask", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
