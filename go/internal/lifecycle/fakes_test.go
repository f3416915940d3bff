package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.list() {
		if e == event {
			n++
		}
	}
	return n
}

type fakeRuntime struct {
	rec       *recorder
	resumeErr error
	pauseErr  error
	onPause   func()
}

func (f *fakeRuntime) ResumeRound(ctx context.Context) error {
	f.rec.add("resume")
	return f.resumeErr
}

func (f *fakeRuntime) PauseRound(ctx context.Context) error {
	if f.onPause != nil {
		f.onPause()
	}
	f.rec.add("pause")
	return f.pauseErr
}

type fakeSnapshotter struct {
	rec   *recorder
	calls atomic.Int64
	err   error
	// when set, Refresh waits for it to be closed
	release chan struct{}
}

func (f *fakeSnapshotter) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	f.rec.add("refresh")
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
		f.rec.add("refresh-done")
	}
	return f.err
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
}

func (o *recordingObserver) PhaseChanged(ctx context.Context, t Transition) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
	return nil
}

func (o *recordingObserver) list() []Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Transition, len(o.transitions))
	copy(out, o.transitions)
	return out
}

const waitFor = 2 * time.Second

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		require.FailNow(t, "round did not end in time")
	}
}
