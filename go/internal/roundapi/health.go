package roundapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mcdev12/roundkeeper/go/internal/round"
	"github.com/rs/zerolog/log"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type HealthStatus struct {
	Healthy bool              `json:"healthy"`
	Phase   string            `json:"phase"`
	Checks  map[string]string `json:"checks"`
	Errors  []string          `json:"errors"`
}

// Check runs every registered dependency check.
func (h *Handler) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Phase:   round.Resolve(h.cfg.Clock.Now(), h.cfg.Window).String(),
		Checks:  make(map[string]string, len(h.cfg.Checks)),
		Errors:  []string{},
	}

	names := make([]string, 0, len(h.cfg.Checks))
	for name := range h.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.cfg.Checks[name](ctx); err != nil {
			status.Healthy = false
			status.Checks[name] = "failing"
			status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		status.Checks[name] = "ok"
	}
	return status
}

// HandleReady handles GET /health/ready.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	if !status.Healthy {
		log.Warn().Strs("errors", status.Errors).Msg("readiness check failed")
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
