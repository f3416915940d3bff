package round

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a window does not satisfy start < end.
var ErrInvalidWindow = errors.New("round start must be before round end")

// Phase is the lifecycle phase of a round. It is always derived from a Window
// and an instant, never stored.
type Phase int

const (
	// Pending means the round has not started yet (now < start).
	Pending Phase = iota
	// Active means the round is running (start <= now < end).
	Active
	// Ended means the round is over (now >= end).
	Ended
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText lets phases render by name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Window holds the declared start and end instants of a round.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a Window in UTC, rejecting windows where start >= end.
func NewWindow(start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow,
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether now falls inside [Start, End).
func (w Window) Contains(now time.Time) bool {
	return Resolve(now, w) == Active
}

// Duration is the length of the round.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Resolve computes the phase of the window at the given instant. The start
// boundary is closed and the end boundary is open.
func Resolve(now time.Time, w Window) Phase {
	switch {
	case now.Before(w.Start):
		return Pending
	case now.Before(w.End):
		return Active
	default:
		return Ended
	}
}
