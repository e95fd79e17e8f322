package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/venture-hub/app"
	"github.com/upb/venture-hub/config"
	"github.com/upb/venture-hub/repositories/postgres"
	"github.com/upb/venture-hub/routes"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     time.Second,
			WriteTimeout:    2 * time.Second,
			RequestTimeout:  time.Second,
			ShutdownTimeout: time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			IdentityTTL:       time.Hour,
			OTPExchangeTTL:    time.Minute,
			ContextTTL:        time.Hour,
			LegacyTTL:         time.Hour,
			OTPTTL:            time.Minute,
			Argon2Memory:      1024,
			Argon2Iterations:  1,
			Argon2Parallelism: 1,
			SessionCacheTTL:   time.Minute,
		},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"},
	}
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
	}{
		{name: "default json logger", level: "info", format: "json"},
		{name: "development console logger", level: "debug", format: "console"},
		{name: "defaults when not set"},
		{name: "invalid log level", level: "invalid", format: "json", wantErr: "invalid log level"},
		{name: "invalid log format", level: "info", format: "xml", wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Observability.LogLevel = tt.level
			cfg.Observability.LogFormat = tt.format

			logger, err := initLogger(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	handler := http.NewServeMux()

	srv := newServer(cfg, handler)

	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Same(t, handler, srv.Handler)
}

func TestShutdown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	cfg := testConfig()
	deps, err := app.Build(cfg, postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(db, logger), logger), logger)
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(routes.SetupRoutes(deps))
	ts.Start()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mock.ExpectClose()
	require.NoError(t, shutdown(ts.Config, deps, cfg.Server.ShutdownTimeout, logger))
	assert.NoError(t, mock.ExpectationsWereMet())

	// Close is idempotent after shutdown
	assert.NoError(t, deps.Close(context.Background()))
}
