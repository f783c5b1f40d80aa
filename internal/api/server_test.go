package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poweranger/trade-optimizer/internal/monitoring"
)

func testDeps() Deps {
	gin.SetMode(gin.TestMode)
	return Deps{
		Logger:         monitoring.NewLogger(),
		Metrics:        monitoring.NewMetrics(),
		AllowedOrigins: []string{"*"},
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := Router(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	deps := testDeps()
	router := Router(deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// The request itself must have been counted.
	snapshot := deps.Metrics.Snapshot()
	assert.NotNil(t, snapshot["request_count"])
}

func TestPredictRejectsMalformedBody(t *testing.T) {
	router := Router(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/predictions/predict-trade",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_input")
}

func TestRankDealersRejectsMalformedBody(t *testing.T) {
	router := Router(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/predictions/rank-dealers",
		strings.NewReader(`{"max_results": "ten"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimiterBlocksBursts(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	deps := testDeps()
	deps.Limiter = limiter
	router := Router(deps)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes[2:], http.StatusTooManyRequests)
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)

	assert.True(t, limiter.get("10.0.0.1").Allow())
	assert.False(t, limiter.get("10.0.0.1").Allow())
	assert.True(t, limiter.get("10.0.0.2").Allow(), "a second client has its own bucket")
}
