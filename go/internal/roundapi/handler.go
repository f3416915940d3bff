package roundapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roundkeeper/go/internal/lifecycle"
	"github.com/mcdev12/roundkeeper/go/internal/round"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// LeaderboardLoader returns the current leaderboard document.
type LeaderboardLoader interface {
	Load() ([]byte, error)
}

// RefreshStatsProvider reports the state of the refresh loop.
type RefreshStatsProvider interface {
	RefreshStats() lifecycle.RefreshStats
}

// RoundStatus is the body of GET /round.
type RoundStatus struct {
	Network            string                 `json:"network"`
	GameStart          time.Time              `json:"game_start"`
	GameEnd            time.Time              `json:"game_end"`
	Phase              string                 `json:"phase"`
	Now                time.Time              `json:"now"`
	RefreshIntervalSec int                    `json:"refresh_interval_sec"`
	Refresh            lifecycle.RefreshStats `json:"refresh"`
}

type Config struct {
	Network         string
	Window          round.Window
	RefreshInterval time.Duration
	Leaderboard     LeaderboardLoader
	Stats           RefreshStatsProvider
	// Stream serves /ws/leaderboard when set.
	Stream http.Handler
	// Checks back /health/ready, keyed by dependency name.
	Checks map[string]Check
	Clock  clockwork.Clock
}

// Handler serves the read-only round API.
type Handler struct {
	cfg      Config
	registry *prometheus.Registry
	metrics  http.Handler
}

func NewHandler(cfg Config) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	h := &Handler{cfg: cfg}
	h.registry = h.newRegistry()
	h.metrics = promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	return h
}

// RegisterRoutes mounts the API on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/health/ready", h.HandleReady)
	mux.Handle("/metrics", h.metrics)
	mux.HandleFunc("/leaderboard", h.HandleLeaderboard)
	mux.HandleFunc("/round", h.HandleRound)
	if h.cfg.Stream != nil {
		mux.Handle("/ws/leaderboard", h.cfg.Stream)
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// HandleLeaderboard handles GET /leaderboard with the document as last written.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, err := h.cfg.Leaderboard.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load leaderboard")
		http.Error(w, "Failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(doc); err != nil {
		log.Error().Err(err).Msg("failed to write leaderboard response")
	}
}

// HandleRound handles GET /round. The phase is resolved from the clock at
// request time.
func (h *Handler) HandleRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := h.cfg.Clock.Now().UTC()
	status := RoundStatus{
		Network:            h.cfg.Network,
		GameStart:          h.cfg.Window.Start,
		GameEnd:            h.cfg.Window.End,
		Phase:              round.Resolve(now, h.cfg.Window).String(),
		Now:                now,
		RefreshIntervalSec: int(h.cfg.RefreshInterval / time.Second),
	}
	if h.cfg.Stats != nil {
		status.Refresh = h.cfg.Stats.RefreshStats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode round status")
	}
}
