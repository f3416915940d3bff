package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/roundkeeper/go/internal/leaderboard"
	"github.com/mcdev12/roundkeeper/go/internal/lifecycle"
)

// Emitter turns scheduler transitions and leaderboard snapshots into events.
type Emitter struct {
	publisher EventPublisher
	network   string
}

func NewEmitter(publisher EventPublisher, network string) *Emitter {
	return &Emitter{publisher: publisher, network: network}
}

type phaseChangedPayload struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
	Trigger string    `json:"trigger"`
	Start   time.Time `json:"gameStart"`
	End     time.Time `json:"gameEnd"`
}

type leaderboardUpdatedPayload struct {
	TakenAt time.Time           `json:"takenAt"`
	Count   int                 `json:"count"`
	Skipped int                 `json:"skipped"`
	Entries []leaderboard.Entry `json:"entries"`
}

func (e *Emitter) PhaseChanged(ctx context.Context, t lifecycle.Transition) error {
	return e.emit(ctx, TypePhaseChanged, t.At, phaseChangedPayload{
		From:    t.From.String(),
		To:      t.To.String(),
		At:      t.At,
		Trigger: t.Trigger,
		Start:   t.Window.Start,
		End:     t.Window.End,
	})
}

func (e *Emitter) LeaderboardUpdated(ctx context.Context, snap leaderboard.Snapshot) error {
	entries := snap.Entries
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	return e.emit(ctx, TypeLeaderboardUpdated, snap.TakenAt, leaderboardUpdatedPayload{
		TakenAt: snap.TakenAt,
		Count:   len(entries),
		Skipped: snap.Skipped,
		Entries: entries,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType string, at time.Time, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return e.publisher.Publish(ctx, Event{
		ID:        uuid.New(),
		Network:   e.network,
		EventType: eventType,
		Payload:   data,
		CreatedAt: at,
	})
}
