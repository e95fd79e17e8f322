package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Probe is a named readiness check
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// DatabaseProbe pings the pool and runs a trivial query through it
func DatabaseProbe(db *sql.DB) Probe {
	return Probe{
		Name: "database",
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		},
	}
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	probes  []Probe
	started time.Time
	logger  *zap.Logger
}

func NewHealthHandler(logger *zap.Logger, probes ...Probe) *HealthHandler {
	return &HealthHandler{
		probes:  probes,
		started: time.Now(),
		logger:  logger,
	}
}

// HandleHealth handles GET /health. It answers 200 as long as the process
// serves requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	})
}

// HandleReadiness handles GET /health/ready. Probes run concurrently and any
// failure turns the response into a 503.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.probes))
		ready  = true
	)
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			err := p.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.Warn("readiness probe failed", zap.String("probe", p.Name), zap.Error(err))
				checks[p.Name] = "unhealthy"
				ready = false
				return
			}
			checks[p.Name] = "healthy"
		}(p)
	}
	wg.Wait()

	status, code := "healthy", http.StatusOK
	if !ready {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}})
	if err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
