package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はスクレイプでメトリクスが返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthAttempt(ResultSuccess)

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "credgate_auth_attempts_total") {
		t.Error("response should contain credgate_auth_attempts_total metric")
	}
}

// TestHandler_OnlyGathersGivenRegistry は別レジストリのメトリクスを含まないことを検証する。
func TestHandler_OnlyGathersGivenRegistry(t *testing.T) {
	other := prometheus.NewRegistry()
	NewCollector(other).RecordAuthAttempt(ResultFailure)

	reg := prometheus.NewRegistry()
	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), "credgate_auth_attempts_total") {
		t.Error("metrics from another registry must not be exposed")
	}
}
