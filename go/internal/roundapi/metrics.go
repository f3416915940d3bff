package roundapi

import (
	"github.com/mcdev12/roundkeeper/go/internal/lifecycle"
	"github.com/mcdev12/roundkeeper/go/internal/round"
	"github.com/prometheus/client_golang/prometheus"
)

// newRegistry exports the round phase and the refresh loop counters. Values
// are read at scrape time, so nothing has to push updates.
func (h *Handler) newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	for _, p := range []round.Phase{round.Pending, round.Active, round.Ended} {
		phase := p
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "roundkeeper_round_phase",
			Help:        "Current phase of the round.",
			ConstLabels: prometheus.Labels{"network": h.cfg.Network, "phase": phase.String()},
		}, func() float64 {
			return boolValue(round.Resolve(h.cfg.Clock.Now(), h.cfg.Window) == phase)
		}))
	}

	if h.cfg.Stats == nil {
		return reg
	}
	stats := h.cfg.Stats.RefreshStats

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "roundkeeper_refresh_running",
			Help: "Whether the leaderboard refresh timer is armed.",
		}, func() float64 { return boolValue(stats().Running) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "roundkeeper_refresh_next_timestamp_seconds",
			Help: "Unix time of the next refresh tick, 0 when stopped.",
		}, func() float64 { return nextTick(stats()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "roundkeeper_refresh_ticks_total",
			Help: "Refresh ticks fired.",
		}, func() float64 { return float64(stats().Ticks) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "roundkeeper_refresh_completed_total",
			Help: "Snapshots finished.",
		}, func() float64 { return float64(stats().Completed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "roundkeeper_refresh_failed_total",
			Help: "Snapshots that returned an error.",
		}, func() float64 { return float64(stats().Failed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "roundkeeper_refresh_skipped_total",
			Help: "Ticks dropped while a snapshot was in flight.",
		}, func() float64 { return float64(stats().Skipped) }),
	)
	return reg
}

func nextTick(s lifecycle.RefreshStats) float64 {
	if !s.Running || s.Next.IsZero() {
		return 0
	}
	return float64(s.Next.Unix())
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
