package leaderboard

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ScoreSource retrieves the raw "identity, score" table from the ledger.
type ScoreSource interface {
	FetchScores(ctx context.Context) ([]byte, error)
}

// Sink stores the latest ranked leaderboard.
type Sink interface {
	Replace(ctx context.Context, snap Snapshot) error
}

// Listener is notified after a snapshot has replaced the sink contents.
type Listener interface {
	LeaderboardUpdated(ctx context.Context, snap Snapshot) error
}

// Pipeline turns a score source into leaderboard snapshots.
type Pipeline struct {
	source    ScoreSource
	sink      Sink
	clock     clockwork.Clock
	listeners []Listener
}

// NewPipeline wires a pipeline. A nil clock falls back to the real clock.
func NewPipeline(source ScoreSource, sink Sink, clock clockwork.Clock) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		source: source,
		sink:   sink,
		clock:  clock,
	}
}

// AddListener registers a listener. Must be called before the first Refresh.
func (p *Pipeline) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// Refresh fetches the scores, ranks them and replaces the sink contents. When
// the fetch fails the sink is left untouched so the previous leaderboard stays
// visible.
func (p *Pipeline) Refresh(ctx context.Context) error {
	raw, err := p.source.FetchScores(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch player scores; keeping previous leaderboard")
		return fmt.Errorf("fetch scores: %w", err)
	}

	snap := Build(raw, p.clock.Now().UTC())
	if snap.Skipped > 0 {
		log.Warn().
			Int("skipped_rows", snap.Skipped).
			Int("entries", len(snap.Entries)).
			Msg("skipped malformed score rows")
	}

	if err := p.sink.Replace(ctx, snap); err != nil {
		log.Error().Err(err).Msg("failed to replace leaderboard")
		return fmt.Errorf("replace leaderboard: %w", err)
	}

	log.Info().
		Int("entries", len(snap.Entries)).
		Time("taken_at", snap.TakenAt).
		Msg("leaderboard refreshed")

	for _, l := range p.listeners {
		if err := l.LeaderboardUpdated(ctx, snap); err != nil {
			log.Error().Err(err).Msg("leaderboard listener failed")
		}
	}

	return nil
}
