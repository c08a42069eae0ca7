package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(CorrelationKey).(string)
		assert.True(t, ok)
		assert.NotEmpty(t, id)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get(HeaderCorrelationID))
}

func TestCorrelationID_PropagatesIncomingHeader(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderCorrelationID, "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderCorrelationID))
}

func TestGetCorrelationID_Unknown(t *testing.T) {
	assert.Equal(t, "unknown", GetCorrelationID(context.Background()))
}

func TestCORS(t *testing.T) {
	called := false
	h := CORS(func(w http.ResponseWriter, r *http.Request) { called = true })

	t.Run("Preflight", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodOptions, "/query", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Passthrough", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/query", nil))
		assert.True(t, called)
	})
}
