package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daccred/library-ledger/controllers"
	"github.com/daccred/library-ledger/handlers"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.NewEntry(logrus.New())
	reg := prometheus.NewRegistry()
	ledger := handlers.NewLedger(handlers.LedgerConfig{Difficulty: 1, SigningSecret: "secret"}, logger)
	orchestrator := handlers.NewOrchestrator(ledger, handlers.OrchestratorConfig{SigningSecret: "secret"}, handlers.NewMetrics(reg), nil, logger)
	controller := controllers.NewLedgerController(orchestrator, nil, 0)
	return NewRouter(controller, RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		Gatherer:       reg,
	}, logger)
}

func TestRequestID(t *testing.T) {
	r := newTestEngine(t)

	t.Run("Generated when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, w.Code)
		_, err := uuid.Parse(w.Header().Get(requestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("Propagated when supplied", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set(requestIDHeader, "req-123")
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
	})
}

func TestCORS(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/blocks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ledger_chain_length 1"))
}
