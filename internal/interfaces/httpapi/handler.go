package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/riskibarqy/wellness-api/internal/platform/logging"
)

const readinessTimeout = 2 * time.Second

// Database is the part of the engine the handlers need.
type Database interface {
	Ping(ctx context.Context) error
	Driver() string
	Stats() sql.DBStats
	ProbeState() string
}

type Handler struct {
	db     Database
	logger *logging.Logger
}

func NewHandler(db Database, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{db: db, logger: logger}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed", "error", err)
		writeError(ctx, w, fmt.Errorf("%w: database: %v", ErrDependencyUnavailable, err))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

type databaseStatus struct {
	Driver          string `json:"driver"`
	Probe           string `json:"probe"`
	OpenConnections int    `json:"openConnections"`
	InUse           int    `json:"inUse"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"waitCount"`
	WaitDurationMS  int64  `json:"waitDurationMs"`
}

func (h *Handler) DatabaseStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DatabaseStatus")
	defer span.End()

	stats := h.db.Stats()
	h.logger.DebugContext(ctx, "database status requested", "open_connections", stats.OpenConnections)

	writeSuccess(w, http.StatusOK, databaseStatus{
		Driver:          h.db.Driver(),
		Probe:           h.db.ProbeState(),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDurationMS:  stats.WaitDuration.Milliseconds(),
	})
}
