package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mager/cochlea/analyzer"
	"go.uber.org/zap"
)

// Pinger checks a backing service.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Configurer reports whether a client has an endpoint.
type Configurer interface {
	Configured() bool
}

// HealthHandler reports whether the server and its dependencies are up.
type HealthHandler struct {
	log      *zap.Logger
	db       Pinger
	analyzer Configurer
}

func (*HealthHandler) Pattern() string {
	return "/health"
}

// NewHealthHandler builds a new HealthHandler.
func NewHealthHandler(log *zap.Logger, db *sql.DB, analyzerClient *analyzer.Client) *HealthHandler {
	return &HealthHandler{
		log:      log,
		db:       db,
		analyzer: analyzerClient,
	}
}

type Response struct {
	Status   string `json:"status"`
	Server   bool   `json:"server"`
	Database bool   `json:"database"`
	Analyzer bool   `json:"analyzer"`
}

// Health check
// @Summary Health check
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var resp Response

	resp.Server = true

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.log.Warn("database ping failed", zap.Error(err))
		} else {
			resp.Database = true
		}
	}

	if h.analyzer != nil && h.analyzer.Configured() {
		resp.Analyzer = true
	}

	resp.Status = "OK"
	if !resp.Database || !resp.Analyzer {
		resp.Status = "DEGRADED"
	}

	h.log.Info("health check", zap.String("status", resp.Status))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
