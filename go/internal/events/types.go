package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published for a round.
const (
	TypePhaseChanged       = "phase_changed"
	TypeLeaderboardUpdated = "leaderboard_updated"
)

type Event struct {
	ID        uuid.UUID
	Network   string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
