package gateway

import (
	"encoding/json"
	"time"
)

// Message is the envelope pushed to every client.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Network   string          `json:"network"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type MessageType string

const (
	// MessageTypeLeaderboard carries the ranked entries, exactly as written to the leaderboard document.
	MessageTypeLeaderboard MessageType = "leaderboard"
	// MessageTypePhase carries a round phase change.
	MessageTypePhase MessageType = "phase"
)

type PhasePayload struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
	Trigger   string    `json:"trigger"`
	GameStart time.Time `json:"game_start"`
	GameEnd   time.Time `json:"game_end"`
}
