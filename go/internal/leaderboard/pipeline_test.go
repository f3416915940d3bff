package leaderboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	raw   []byte
	err   error
	calls int
}

func (s *stubSource) FetchScores(ctx context.Context) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

type recordingListener struct {
	snaps []Snapshot
	err   error
}

func (l *recordingListener) LeaderboardUpdated(ctx context.Context, snap Snapshot) error {
	l.snaps = append(l.snaps, snap)
	return l.err
}

func TestParseSkipsMalformedRows(t *testing.T) {
	entries, skipped := Parse([]byte("0xA, 50\n0xB, 90\n,\n0xC, 90"))

	assert.Equal(t, 1, skipped)
	assert.Equal(t, []Entry{
		{Identity: "0xA", Score: 50},
		{Identity: "0xB", Score: 90},
		{Identity: "0xC", Score: 90},
	}, entries)
}

func TestBuildRanksStably(t *testing.T) {
	taken := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	snap := Build([]byte("0xA, 50\n0xB, 90\n,\n0xC, 90"), taken)

	assert.Equal(t, []Entry{
		{Identity: "0xB", Score: 90},
		{Identity: "0xC", Score: 90},
		{Identity: "0xA", Score: 50},
	}, snap.Entries)
	assert.Equal(t, taken, snap.TakenAt)
}

func TestParseOneBadRowAmongValid(t *testing.T) {
	snap := Build([]byte("0x1, 10\n0x2, 30\n0x3, lots\n0x4, 20\n0x5, 25\n"), time.Time{})

	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, []Entry{
		{Identity: "0x2", Score: 30},
		{Identity: "0x5", Score: 25},
		{Identity: "0x4", Score: 20},
		{Identity: "0x1", Score: 10},
	}, snap.Entries)
}

func TestParseMalformedShapes(t *testing.T) {
	raw := []byte("0x1, 10\n0x3\n\n   \n, 40\n0x6, NaN\n0x8, +Inf\n0x7, 5.5\r\n0x9, 3, extra\n")
	entries, skipped := Parse(raw)

	assert.Equal(t, 4, skipped)
	assert.Equal(t, []Entry{
		{Identity: "0x1", Score: 10},
		{Identity: "0x7", Score: 5.5},
		{Identity: "0x9", Score: 3},
	}, entries)
}

func TestParseSkipsOverlongRow(t *testing.T) {
	raw := "0xA, 50\n" + strings.Repeat("f", 2<<20) + ", 1\n0xB, 90\n0xC, 70\n"
	entries, skipped := Parse([]byte(raw))

	assert.Equal(t, 1, skipped)
	assert.Equal(t, []Entry{
		{Identity: "0xA", Score: 50},
		{Identity: "0xB", Score: 90},
		{Identity: "0xC", Score: 70},
	}, entries)
}

func TestParseRowAtLengthLimit(t *testing.T) {
	identity := strings.Repeat("a", MaxRowBytes-len(", 1\n"))
	entries, skipped := Parse([]byte(identity + ", 1\n"))

	assert.Zero(t, skipped)
	require.Len(t, entries, 1)
	assert.Equal(t, identity, entries[0].Identity)
}

func TestRefreshKeepsRowsAfterOverlongRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaderboard.json")
	raw := "0xA, 50\n" + strings.Repeat("f", 2<<20) + ", 1\n0xB, 90\n0xC, 70\n"
	p := NewPipeline(&stubSource{raw: []byte(raw)}, NewFileSink(path), clockwork.NewFakeClock())

	require.NoError(t, p.Refresh(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"identity":"0xB","score":90},{"identity":"0xC","score":70},{"identity":"0xA","score":50}]`, string(data))
}

func TestParseEmpty(t *testing.T) {
	entries, skipped := Parse(nil)
	assert.Empty(t, entries)
	assert.Zero(t, skipped)

	data, err := Encode(entries)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRefreshWritesSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "leaderboard.json")
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
	source := &stubSource{raw: []byte("0xA, 50\n0xB, 90\n,\n0xC, 90")}
	listener := &recordingListener{}

	p := NewPipeline(source, NewFileSink(path), clock)
	p.AddListener(listener)

	require.NoError(t, p.Refresh(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"identity":"0xB","score":90},{"identity":"0xC","score":90},{"identity":"0xA","score":50}]`, string(data))

	require.Len(t, listener.snaps, 1)
	assert.Equal(t, clock.Now(), listener.snaps[0].TakenAt)
	assert.Equal(t, 1, listener.snaps[0].Skipped)
}

func TestRefreshIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaderboard.json")
	clock := clockwork.NewFakeClock()
	p := NewPipeline(&stubSource{raw: []byte("0xA, 1\n0xB, 2\n0xC, 2\n")}, NewFileSink(path), clock)

	require.NoError(t, p.Refresh(context.Background()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	require.NoError(t, p.Refresh(context.Background()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRefreshFetchFailureKeepsPreviousLeaderboard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaderboard.json")
	source := &stubSource{raw: []byte("0xA, 7\n")}
	listener := &recordingListener{}
	p := NewPipeline(source, NewFileSink(path), nil)
	p.AddListener(listener)

	require.NoError(t, p.Refresh(context.Background()))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	source.err = errors.New("rpc unavailable")
	err = p.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, source.err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, listener.snaps, 1)
	assert.Equal(t, 2, source.calls)
}

func TestRefreshListenerFailureDoesNotFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaderboard.json")
	failing := &recordingListener{err: errors.New("nats down")}
	next := &recordingListener{}
	p := NewPipeline(&stubSource{raw: []byte("0xA, 7\n")}, NewFileSink(path), nil)
	p.AddListener(failing)
	p.AddListener(next)

	require.NoError(t, p.Refresh(context.Background()))
	assert.Len(t, failing.snaps, 1)
	assert.Len(t, next.snaps, 1)
}

func TestFileSinkLoad(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "leaderboard.json"))

	data, err := sink.Load()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	require.NoError(t, sink.Replace(context.Background(), Snapshot{Entries: []Entry{{Identity: "0xA", Score: 3}}}))
	data, err = sink.Load()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"identity":"0xA","score":3}]`, string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(sink.Path()), ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileSinkRespectsCancelledContext(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "leaderboard.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, sink.Replace(ctx, Snapshot{}), context.Canceled)
	data, err := sink.Load()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
