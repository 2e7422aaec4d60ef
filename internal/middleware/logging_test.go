package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRequestLog(t *testing.T, status int, target string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := SecureLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("body"))
	}))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

// ============================================================================
// Request Logging Tests (2 tests)
// ============================================================================

func TestSecureLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusSeeOther, "INFO"},
		{http.StatusUnprocessableEntity, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			entry := captureRequestLog(t, tt.status, "/dashboard")
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, "192.0.2.10", entry["client_ip"])
			assert.Equal(t, float64(4), entry["bytes"])
		})
	}
}

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	entry := captureRequestLog(t, http.StatusOK, "/auth/oauth/callback?code=abc123&state=xyz&page=2")

	path, _ := entry["path"].(string)
	assert.NotContains(t, path, "abc123")
	assert.NotContains(t, path, "xyz")
	assert.Contains(t, path, "page=2")
}
