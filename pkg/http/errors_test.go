package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithDetails(w, 400, "test_error", "Test message", "Additional details")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Additional details", resp.Details)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"state": "authenticated"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"authenticated"}`, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string)
		status int
		code   string
	}{
		{"bad request", pkghttp.WriteBadRequest, http.StatusBadRequest, "bad_request"},
		{"unauthorized", pkghttp.WriteUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", pkghttp.WriteNotFound, http.StatusNotFound, "not_found"},
		{"conflict", pkghttp.WriteConflict, http.StatusConflict, "conflict"},
		{"too many requests", pkghttp.WriteTooManyRequests, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"internal", pkghttp.WriteInternalError, http.StatusInternalServerError, "internal_error"},
		{"bad gateway", pkghttp.WriteBadGateway, http.StatusBadGateway, "delivery_failed"},
		{"unavailable", pkghttp.WriteServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "message")

			assert.Equal(t, tt.status, w.Code)

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, "message", resp.Message)
		})
	}
}
