package lifecycle

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// armTimer creates a one-shot timer that fires at the given instant.
func armTimer(clock clockwork.Clock, name string, at time.Time) clockwork.Timer {
	duration := at.Sub(clock.Now())
	timer := clock.NewTimer(duration)

	log.Debug().
		Str("timer", name).
		Time("deadline", at).
		Dur("duration", duration).
		Msg("armed one-shot timer")

	return timer
}

// awaitTimer blocks until the timer fires or ctx is cancelled. It reports false
// when the context was cancelled, including the case where both happened, so an
// already-fired timer never runs its action after cancellation.
func awaitTimer(ctx context.Context, timer clockwork.Timer) bool {
	select {
	case <-timer.Chan():
		return ctx.Err() == nil
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return false
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
// This follows the pattern recommended in the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		// Timer already fired or was stopped, drain the channel
		select {
		case <-timer.Chan():
		default:
		}
	}
}
