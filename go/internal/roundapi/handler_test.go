package roundapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roundkeeper/go/internal/leaderboard"
	"github.com/mcdev12/roundkeeper/go/internal/lifecycle"
	"github.com/mcdev12/roundkeeper/go/internal/round"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLoader struct{}

func (failingLoader) Load() ([]byte, error) { return nil, errors.New("permission denied") }

type fixedStats lifecycle.RefreshStats

func (s fixedStats) RefreshStats() lifecycle.RefreshStats { return lifecycle.RefreshStats(s) }

func newTestHandler(t *testing.T, now time.Time, loader LeaderboardLoader) *http.ServeMux {
	t.Helper()
	window, err := round.NewWindow(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	h := NewHandler(Config{
		Network:         "localhost",
		Window:          window,
		RefreshInterval: 5 * time.Minute,
		Leaderboard:     loader,
		Stats:           fixedStats{Running: true, Completed: 3},
		Stream: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Clock: clockwork.NewFakeClockAt(now),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	mux := newTestHandler(t, time.Now(), leaderboard.NewFileSink(filepath.Join(t.TempDir(), "leaderboard.json")))

	rec := serve(mux, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestLeaderboardBeforeFirstSnapshot(t *testing.T) {
	mux := newTestHandler(t, time.Now(), leaderboard.NewFileSink(filepath.Join(t.TempDir(), "leaderboard.json")))

	rec := serve(mux, http.MethodGet, "/leaderboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLeaderboardServesDocument(t *testing.T) {
	sink := leaderboard.NewFileSink(filepath.Join(t.TempDir(), "leaderboard.json"))
	require.NoError(t, sink.Replace(t.Context(), leaderboard.Snapshot{
		Entries: []leaderboard.Entry{{Identity: "0xbbb", Score: 90}, {Identity: "0xaaa", Score: 50}},
	}))
	mux := newTestHandler(t, time.Now(), sink)

	rec := serve(mux, http.MethodGet, "/leaderboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"identity":"0xbbb","score":90},{"identity":"0xaaa","score":50}]`, rec.Body.String())
}

func TestLeaderboardLoadFailure(t *testing.T) {
	mux := newTestHandler(t, time.Now(), failingLoader{})

	rec := serve(mux, http.MethodGet, "/leaderboard")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLeaderboardRejectsWrites(t *testing.T) {
	mux := newTestHandler(t, time.Now(), failingLoader{})

	rec := serve(mux, http.MethodPost, "/leaderboard")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRoundStatusPhaseAtRequestTime(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"before start", time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), "pending"},
		{"at start", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "active"},
		{"at end", time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), "ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestHandler(t, tt.now, failingLoader{})

			rec := serve(mux, http.MethodGet, "/round")
			require.Equal(t, http.StatusOK, rec.Code)

			var status RoundStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, tt.want, status.Phase)
			assert.Equal(t, "localhost", status.Network)
			assert.Equal(t, 300, status.RefreshIntervalSec)
			assert.True(t, status.Refresh.Running)
			assert.EqualValues(t, 3, status.Refresh.Completed)
			assert.True(t, tt.now.Equal(status.Now))
		})
	}
}

func TestStreamRouteMounted(t *testing.T) {
	mux := newTestHandler(t, time.Now(), failingLoader{})

	rec := serve(mux, http.MethodGet, "/ws/leaderboard")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
