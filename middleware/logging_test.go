package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/venture-hub/internal/observability"
	"go.uber.org/zap"
)

// MockMetrics is a mock implementation of observability.Metrics
type MockMetrics struct {
	mock.Mock
	observability.NopMetrics
}

func (m *MockMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.Called(method, route, status)
}

func TestRequestLogger(t *testing.T) {
	metrics := new(MockMetrics)
	metrics.On("RecordHTTPRequest", http.MethodGet, "/api/users/{id}", http.StatusTeapot).Once()
	metrics.On("RecordHTTPRequest", http.MethodGet, "unmatched", http.StatusNotFound).Once()

	var hasLogger bool
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(zap.NewNop(), metrics))
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		hasLogger = observability.LoggerFromContext(r.Context(), nil) != nil
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/42", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.True(t, hasLogger)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	metrics.AssertExpectations(t)
}

func TestStatusRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	_, _ = rec.Write([]byte("hi"))
	rec.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rec.status)
}
