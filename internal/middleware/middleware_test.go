package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/rs/zerolog"
)

type allowList map[string]bool

func (a allowList) Allowed(key string) bool { return a[key] }

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(zerolog.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequestIDGenerated(t *testing.T) {
	h := RequestID(zerolog.New(io.Discard))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, "", rec.Header().Get("X-Request-ID"))
}

func TestAccessGate(t *testing.T) {
	var key any
	h := AccessGate(allowList{"squad1": true}, zerolog.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Context().Value(AccessKeyKey)
	}))

	tests := []struct {
		url    string
		status int
	}{
		{"/stats?key=squad1", http.StatusOK},
		{"/stats?key=squad2", http.StatusForbidden},
		{"/stats", http.StatusForbidden},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
		assert.Equal(t, tt.status, rec.Code)
	}
	assert.Equal(t, "squad1", key)
}
