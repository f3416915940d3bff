package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roundkeeper/go/internal/round"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("already started")

// Trigger values recorded on transitions.
const (
	TriggerStartup = "startup"
	TriggerTimer   = "timer"
)

// Runtime is the contract runtime that opens and closes the round on-chain.
type Runtime interface {
	ResumeRound(ctx context.Context) error
	PauseRound(ctx context.Context) error
}

// Transition describes a phase change performed by the scheduler.
type Transition struct {
	From    round.Phase  `json:"from"`
	To      round.Phase  `json:"to"`
	At      time.Time    `json:"at"`
	Trigger string       `json:"trigger"`
	Window  round.Window `json:"window"`
}

// Observer is told about every transition once its actions have run.
type Observer interface {
	PhaseChanged(ctx context.Context, t Transition) error
}

// Config wires a Scheduler.
type Config struct {
	Window          round.Window
	RefreshInterval time.Duration
	Runtime         Runtime
	Snapshotter     Snapshotter
	// Clock defaults to the real clock. Tests use a clockwork.FakeClock.
	Clock clockwork.Clock
}

// Scheduler drives a round through Pending, Active and Ended. Start and end
// actions run on a single dispatcher goroutine so the end action can never
// overtake the start action.
type Scheduler struct {
	window      round.Window
	runtime     Runtime
	snapshotter Snapshotter
	refresher   *Refresher
	clock       clockwork.Clock
	instanceID  string
	observers   []Observer

	mu         sync.Mutex
	phase      round.Phase
	started    bool
	startTimer clockwork.Timer
	endTimer   clockwork.Timer
	cancel     context.CancelFunc

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler. Nothing is armed until Start.
func NewScheduler(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		window:      cfg.Window,
		runtime:     cfg.Runtime,
		snapshotter: cfg.Snapshotter,
		refresher:   NewRefresher(cfg.Snapshotter, clock, cfg.RefreshInterval),
		clock:       clock,
		instanceID:  uuid.New().String()[:8], // short ID for logging
		done:        make(chan struct{}),
	}
}

// AddObserver registers an observer. Must be called before Start.
func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Window returns the round window.
func (s *Scheduler) Window() round.Window {
	return s.window
}

// Phase returns the state the scheduler has entered.
func (s *Scheduler) Phase() round.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RefreshStats exposes the refresh loop state.
func (s *Scheduler) RefreshStats() RefreshStats {
	return s.refresher.Stats()
}

// Done is closed once the round has ended and the final snapshot was taken.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Start resolves the current phase from the clock, runs any action that is
// already due and arms the remaining timers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	now := s.clock.Now()
	phase := round.Resolve(now, s.window)
	s.phase = phase
	s.mu.Unlock()

	log.Info().
		Str("instance", s.instanceID).
		Str("phase", phase.String()).
		Time("now", now).
		Time("game_start", s.window.Start).
		Time("game_end", s.window.End).
		Msg("round scheduler starting")

	switch phase {
	case round.Pending:
		s.mu.Lock()
		s.startTimer = armTimer(s.clock, "start", s.window.Start)
		s.endTimer = armTimer(s.clock, "end", s.window.End)
		s.mu.Unlock()
		log.Info().Time("at", s.window.Start).Msg("round is scheduled to resume")
		log.Info().Time("at", s.window.End).Msg("round is scheduled to pause")

	case round.Active:
		s.enterActive(runCtx, round.Active, TriggerStartup)
		s.mu.Lock()
		s.endTimer = armTimer(s.clock, "end", s.window.End)
		s.mu.Unlock()
		log.Info().Time("at", s.window.End).Msg("round is scheduled to pause")

	case round.Ended:
		s.enterEnded(runCtx, round.Ended, TriggerStartup)
		return nil
	}

	s.wg.Add(1)
	go s.dispatch(runCtx)
	return nil
}

// Stop cancels all armed timers and waits for running actions to return. No
// action starts after Stop has been called.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		startTimer, endTimer := s.startTimer, s.endTimer
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		stopAndDrainTimer(startTimer)
		stopAndDrainTimer(endTimer)

		s.wg.Wait()
		s.refresher.Stop()

		log.Info().Str("instance", s.instanceID).Msg("round scheduler stopped")
	})
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()

	if s.Phase() == round.Pending {
		if !awaitTimer(ctx, s.startTimer) {
			log.Debug().Str("timer", "start").Msg("timer cancelled")
			return
		}
		s.enterActive(ctx, round.Pending, TriggerTimer)
	}

	if !awaitTimer(ctx, s.endTimer) {
		log.Debug().Str("timer", "end").Msg("timer cancelled")
		return
	}
	s.enterEnded(ctx, round.Active, TriggerTimer)
}

// enterActive resumes the round and starts the refresh timer. A failed resume
// is logged and the refresh timer starts anyway.
func (s *Scheduler) enterActive(ctx context.Context, from round.Phase, trigger string) {
	if ctx.Err() != nil {
		return
	}
	enteredAt := s.clock.Now().UTC()
	s.setPhase(round.Active)

	log.Info().
		Str("instance", s.instanceID).
		Str("trigger", trigger).
		Msg("round starting; resuming game")

	if err := s.runtime.ResumeRound(ctx); err != nil {
		log.Error().
			Err(err).
			Str("instance", s.instanceID).
			Str("phase", round.Active.String()).
			Str("timer", "start").
			Msg("resume round failed; starting leaderboard refresh regardless")
	}

	if ctx.Err() != nil {
		return
	}
	if err := s.refresher.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("failed to start leaderboard refresh timer")
	}

	s.notify(ctx, from, round.Active, trigger, enteredAt)
}

// enterEnded stops the refresh timer, pauses the round and takes the final
// snapshot. The refresh timer is confirmed stopped before the pause call, and
// the final snapshot runs whatever the pause outcome.
func (s *Scheduler) enterEnded(ctx context.Context, from round.Phase, trigger string) {
	if ctx.Err() != nil {
		return
	}
	enteredAt := s.clock.Now().UTC()
	s.setPhase(round.Ended)

	s.refresher.Stop()

	log.Info().
		Str("instance", s.instanceID).
		Str("trigger", trigger).
		Msg("round ending; pausing game")

	if err := s.runtime.PauseRound(ctx); err != nil {
		log.Error().
			Err(err).
			Str("instance", s.instanceID).
			Str("phase", round.Ended.String()).
			Str("timer", "end").
			Msg("pause round failed; taking final leaderboard snapshot regardless")
	}

	if err := s.snapshotter.Refresh(ctx); err != nil {
		log.Error().Err(err).Str("instance", s.instanceID).Msg("final leaderboard snapshot failed")
	} else {
		log.Info().Str("instance", s.instanceID).Msg("final leaderboard snapshot written")
	}

	s.notify(ctx, from, round.Ended, trigger, enteredAt)
	close(s.done)
}

func (s *Scheduler) setPhase(p round.Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Scheduler) notify(ctx context.Context, from, to round.Phase, trigger string, at time.Time) {
	t := Transition{
		From:    from,
		To:      to,
		At:      at,
		Trigger: trigger,
		Window:  s.window,
	}
	for _, o := range s.observers {
		if err := o.PhaseChanged(ctx, t); err != nil {
			log.Error().
				Err(err).
				Str("to", to.String()).
				Msg("phase observer failed")
		}
	}
}
