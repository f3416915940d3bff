package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    network     TEXT        NOT NULL,
    taken_at    TIMESTAMPTZ NOT NULL,
    entry_count INTEGER     NOT NULL,
    skipped     INTEGER     NOT NULL,
    entries     JSONB       NOT NULL
)`

// HistoryStore appends every published snapshot to Postgres so rankings can be
// audited after the round.
type HistoryStore struct {
	pool    *pgxpool.Pool
	network string
}

// NewHistoryStore wraps a pool. Call EnsureSchema once before use.
func NewHistoryStore(pool *pgxpool.Pool, network string) *HistoryStore {
	return &HistoryStore{pool: pool, network: network}
}

// EnsureSchema creates the snapshot table when missing.
func (h *HistoryStore) EnsureSchema(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("failed to create leaderboard_snapshots: %w", err)
	}
	return nil
}

// LeaderboardUpdated records the snapshot.
func (h *HistoryStore) LeaderboardUpdated(ctx context.Context, snap Snapshot) error {
	entries, err := Encode(snap.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = h.pool.Exec(ctx, `
        INSERT INTO leaderboard_snapshots (network, taken_at, entry_count, skipped, entries)
        VALUES ($1, $2, $3, $4, $5)
    `, h.network, snap.TakenAt, len(snap.Entries), snap.Skipped, entries)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent stored snapshot for the network.
func (h *HistoryStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	var (
		takenAt time.Time
		skipped int
		raw     []byte
	)
	err := h.pool.QueryRow(ctx, `
        SELECT taken_at, skipped, entries
        FROM leaderboard_snapshots
        WHERE network = $1
        ORDER BY taken_at DESC, id DESC
        LIMIT 1
    `, h.network).Scan(&takenAt, &skipped, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to decode snapshot entries: %w", err)
	}
	return Snapshot{Entries: entries, TakenAt: takenAt.UTC(), Skipped: skipped}, true, nil
}
