package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lumikids/tutorflow/config"
	"github.com/lumikids/tutorflow/internal/telemetry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OpenAI.APIKey = "test-key"

	providers, err := telemetry.Init(cfg.Telemetry, zaptest.NewLogger(t))
	require.NoError(t, err)

	s, err := newServer(cfg, config.NewLoader(), "", zaptest.NewLogger(t), providers, prometheus.NewRegistry())
	require.NoError(t, err)
	return s
}

func postRespond(s *Server, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/respond", strings.NewReader(body))
	s.handleRespond(rec, req)
	return rec
}

func TestRespondRejectsWrongMethod(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleRespond(rec, httptest.NewRequest(http.MethodGet, "/api/v1/respond", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRespondRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)
	rec := postRespond(s, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestRespondValidatesFields(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing message", `{"age_group":"middle","session_id":"s1"}`, "message is required"},
		{"bad age group", `{"age_group":"adult","session_id":"s1","message":"hi"}`, "age_group"},
		{"missing session", `{"age_group":"middle","message":"hi"}`, "session_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRespond(s, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestReadyzAndVersion(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.handleVersion(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}

func TestBuildStoreRejectsUnknownBackend(t *testing.T) {
	_, err := buildStore(config.StorageConfig{Backend: "tape"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
