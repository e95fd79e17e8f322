package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func healthData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop(), Probe{
		Name:  "never_called",
		Check: func(context.Context) error { return errors.New("liveness must not run probes") },
	})

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := healthData(t, w)
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, data["uptime"])
	assert.Nil(t, data["checks"])
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	readiness := func(h *HealthHandler) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		return w
	}

	t.Run("healthy when database is available", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		w := readiness(NewHealthHandler(logger, DatabaseProbe(db)))

		assert.Equal(t, http.StatusOK, w.Code)
		data := healthData(t, w)
		assert.Equal(t, "healthy", data["status"])
		assert.Equal(t, map[string]interface{}{"database": "healthy"}, data["checks"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy when database ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		w := readiness(NewHealthHandler(logger, DatabaseProbe(db)))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		data := healthData(t, w)
		assert.Equal(t, "unhealthy", data["status"])
		assert.Equal(t, map[string]interface{}{"database": "unhealthy"}, data["checks"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy when database query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)

		w := readiness(NewHealthHandler(logger, DatabaseProbe(db)))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("every probe is reported by name", func(t *testing.T) {
		w := readiness(NewHealthHandler(logger,
			Probe{Name: "session_cache", Check: func(context.Context) error { return nil }},
			Probe{Name: "activity", Check: func(context.Context) error { return errors.New("not started") }},
		))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		data := healthData(t, w)
		assert.Equal(t, "unhealthy", data["status"])
		assert.Equal(t, map[string]interface{}{
			"session_cache": "healthy",
			"activity":      "unhealthy",
		}, data["checks"])
	})

	t.Run("probes see a deadline", func(t *testing.T) {
		w := readiness(NewHealthHandler(logger, Probe{
			Name: "deadline",
			Check: func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); !ok {
					return errors.New("no deadline")
				}
				return nil
			},
		}))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
