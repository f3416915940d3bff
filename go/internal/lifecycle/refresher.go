package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Snapshotter regenerates the leaderboard.
type Snapshotter interface {
	Refresh(ctx context.Context) error
}

// RefreshStats describes the refresh loop for status endpoints and tests.
type RefreshStats struct {
	Running   bool      `json:"running"`
	Next      time.Time `json:"next,omitempty"`
	Ticks     uint64    `json:"ticks"`
	Completed uint64    `json:"completed"`
	Failed    uint64    `json:"failed"`
	Skipped   uint64    `json:"skipped"`
}

// Refresher runs the snapshotter on an hour-aligned cadence. A tick that fires
// while the previous snapshot is still running is dropped, and the following
// tick keeps the aligned cadence.
type Refresher struct {
	snapshotter Snapshotter
	clock       clockwork.Clock
	interval    time.Duration

	// held for exactly one snapshot run
	inFlight sync.Mutex

	mu      sync.Mutex
	running bool
	next    time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ticks     atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
}

// NewRefresher creates a stopped refresher.
func NewRefresher(snapshotter Snapshotter, clock clockwork.Clock, interval time.Duration) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Refresher{
		snapshotter: snapshotter,
		clock:       clock,
		interval:    interval,
	}
}

// Start arms the repeating timer. Snapshots run with ctx, so cancelling it
// aborts an in-flight snapshot as well as the loop. A cancelled ctx is
// returned as an error and nothing is armed.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyStarted
	}
	// Stop may already have cancelled ctx; a loop started now would exit at
	// once and leave running set.
	if err := ctx.Err(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	now := r.clock.Now()
	next := NextAligned(now, r.interval)
	timer := r.clock.NewTimer(next.Sub(now))

	r.running = true
	r.cancel = cancel
	r.next = next

	r.wg.Add(1)
	go r.loop(loopCtx, ctx, timer)

	log.Info().
		Dur("interval", r.interval).
		Time("next_refresh", next).
		Msg("leaderboard refresh timer started")
	return nil
}

// Stop cancels the repeating timer and waits until the loop has exited and any
// in-flight snapshot has finished. It is safe to call on a stopped refresher.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.next = time.Time{}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()

	log.Info().Msg("leaderboard refresh timer stopped")
}

// Stats returns a point-in-time view of the loop.
func (r *Refresher) Stats() RefreshStats {
	r.mu.Lock()
	running, next := r.running, r.next
	r.mu.Unlock()

	return RefreshStats{
		Running:   running,
		Next:      next,
		Ticks:     r.ticks.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
		Skipped:   r.skipped.Load(),
	}
}

func (r *Refresher) loop(loopCtx, workCtx context.Context, timer clockwork.Timer) {
	defer r.wg.Done()

	for {
		if !awaitTimer(loopCtx, timer) {
			return
		}

		now := r.clock.Now()
		r.tick(workCtx, now)

		next := NextAligned(now, r.interval)
		r.mu.Lock()
		r.next = next
		r.mu.Unlock()
		timer.Reset(next.Sub(now))
	}
}

func (r *Refresher) tick(ctx context.Context, at time.Time) {
	r.ticks.Add(1)

	if !r.inFlight.TryLock() {
		r.skipped.Add(1)
		log.Warn().
			Time("tick", at).
			Msg("previous leaderboard refresh still running; skipping tick")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.snapshot(ctx, at)
		r.completed.Add(1)
	}()
}

func (r *Refresher) snapshot(ctx context.Context, at time.Time) {
	defer r.inFlight.Unlock()

	start := r.clock.Now()
	if err := r.snapshotter.Refresh(ctx); err != nil {
		r.failed.Add(1)
		log.Error().
			Err(err).
			Time("tick", at).
			Msg("scheduled leaderboard refresh failed")
		return
	}

	log.Debug().
		Time("tick", at).
		Dur("took", r.clock.Since(start)).
		Msg("scheduled leaderboard refresh done")
}
