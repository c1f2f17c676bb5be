// Package session is the GM side state machine: it creates a session, moves
// it through waiting, active and finished, and drives the question timer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
	"github.com/mcdev12/quizsync/go/internal/quiz/timer"
)

// DefaultRevealGrace is how long the correct answer stays on screen before
// the next question.
const DefaultRevealGrace = 3 * time.Second

var validate = validator.New()

// Config carries the collaborators a Machine needs.
type Config struct {
	Store       store.Store
	Clock       timer.Clock
	RevealGrace time.Duration
	Logger      zerolog.Logger
}

// Machine drives one session. All transitions are serialized by mu, and the
// countdown hooks take the same lock, so a tick or auto-advance from a
// replaced run can never land after the transition that replaced it.
type Machine struct {
	store     store.Store
	clock     timer.Clock
	countdown *timer.Countdown
	grace     time.Duration
	log       zerolog.Logger

	id         string
	gameMaster string
	seconds    int

	mu        sync.Mutex
	questions []models.Question
	life      context.Context
	stop      context.CancelFunc
}

func newMachine(cfg Config, id, gameMaster string, seconds int, questions []models.Question) *Machine {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	grace := cfg.RevealGrace
	if grace <= 0 {
		grace = DefaultRevealGrace
	}
	life, stop := context.WithCancel(context.Background())
	return &Machine{
		store:      cfg.Store,
		clock:      clock,
		countdown:  timer.New(clock),
		grace:      grace,
		log:        cfg.Logger.With().Str("component", "session").Str("session_id", id).Logger(),
		id:         id,
		gameMaster: gameMaster,
		seconds:    seconds,
		questions:  questions,
		life:       life,
		stop:       stop,
	}
}

// ValidateSettings checks settings against their struct tags.
func ValidateSettings(settings models.SessionSettings) error {
	if err := validate.Struct(settings); err != nil {
		return fmt.Errorf("%w: %v", quiz.ErrInvalidSettings, err)
	}
	return nil
}

// Create writes a new waiting session owned by gameMaster. The questions
// are held by the machine and only written to the store on Start.
func Create(ctx context.Context, cfg Config, gameMaster string, settings models.SessionSettings, questions []models.Question) (*Machine, error) {
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: category %q", quiz.ErrSupplyFailure, settings.Category)
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", quiz.ErrSupplyFailure, err)
		}
	}

	id, err := cfg.Store.NewKey(ctx, Root)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate session id: %w", err)
	}

	m := newMachine(cfg, id, gameMaster, settings.SecondsPerQuestion, append([]models.Question(nil), questions...))
	record := models.Session{
		Status:               models.SessionStatusWaiting,
		GameMaster:           gameMaster,
		Settings:             settings,
		CurrentQuestionIndex: models.NoQuestion,
		TimeRemaining:        0,
		Players:              map[string]models.Player{},
		CreatedAt:            m.clock.Now().UTC(),
	}
	if err := cfg.Store.Set(ctx, Path(id), record); err != nil {
		m.stop()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.log.Info().
		Str("game_master", gameMaster).
		Str("category", settings.Category).
		Int("questions", len(questions)).
		Msg("session created")
	return m, nil
}

// Open attaches to an existing session. It is how a client that did not
// create the session gets a handle; every transition it attempts is refused
// unless callerID is the session's game master.
func Open(ctx context.Context, cfg Config, sessionID string) (*Machine, error) {
	s, err := Load(ctx, cfg.Store, sessionID)
	if err != nil {
		return nil, err
	}
	return newMachine(cfg, sessionID, s.GameMaster, s.Settings.SecondsPerQuestion, s.Questions), nil
}

func (m *Machine) ID() string         { return m.id }
func (m *Machine) GameMaster() string { return m.gameMaster }

// TimerPhase exposes the countdown phase, PhaseRevealing during the window
// between a question's expiry and the automatic advance.
func (m *Machine) TimerPhase() timer.Phase {
	return m.countdown.Phase()
}

func (m *Machine) authorize(callerID, action string) error {
	if callerID != m.gameMaster {
		m.log.Warn().Str("caller_id", callerID).Str("action", action).Msg("refused GM-only transition")
		return quiz.ErrPermissionDenied
	}
	return nil
}

// Start moves a waiting session to its first question and starts the timer.
func (m *Machine) Start(ctx context.Context, callerID string) error {
	if err := m.authorize(callerID, "start"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.questions) == 0 {
		return fmt.Errorf("%w: session %s holds no questions", quiz.ErrSupplyFailure, m.id)
	}

	// A transaction, so a join racing the start either lands before it or
	// sees the session as active.
	_, err := m.store.Transaction(ctx, Path(m.id), func(current any) (any, error) {
		s, err := Decode(m.id, current)
		if err != nil {
			return nil, err
		}
		if s.Status != models.SessionStatusWaiting {
			return nil, fmt.Errorf("%w: start from %s", quiz.ErrInvalidTransition, s.Status)
		}
		s.Questions = m.questions
		s.CurrentQuestionIndex = 0
		s.Status = models.SessionStatusActive
		s.TimeRemaining = m.seconds
		for id, p := range s.Players {
			p.Answered = false
			s.Players[id] = p
		}
		return s, nil
	})
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	m.log.Info().Int("question_index", 0).Msg("session started")
	m.startTimerLocked(0)
	return nil
}

// Advance moves to the next question, or finishes the session after the
// last one. Advancing a finished session is a no-op.
func (m *Machine) Advance(ctx context.Context, callerID string) error {
	if err := m.authorize(callerID, "advance"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceLocked(ctx)
}

func (m *Machine) advanceLocked(ctx context.Context) error {
	s, err := Load(ctx, m.store, m.id)
	if err != nil {
		return err
	}

	switch s.Status {
	case models.SessionStatusFinished:
		return nil
	case models.SessionStatusWaiting:
		return fmt.Errorf("%w: advance from %s", quiz.ErrInvalidTransition, s.Status)
	}

	next := s.CurrentQuestionIndex + 1
	if next >= len(s.Questions) {
		return m.finishLocked(ctx, "last question answered")
	}

	// Player ids are opaque, so the answered reset goes through the decoded
	// session rather than per-player paths.
	_, err = m.store.Transaction(ctx, Path(m.id), func(current any) (any, error) {
		cur, err := Decode(m.id, current)
		if err != nil {
			return nil, err
		}
		if cur.Status != models.SessionStatusActive || cur.CurrentQuestionIndex != next-1 {
			return nil, fmt.Errorf("%w: session moved on during advance", quiz.ErrInvalidTransition)
		}
		cur.CurrentQuestionIndex = next
		cur.TimeRemaining = m.seconds
		for id, p := range cur.Players {
			p.Answered = false
			cur.Players[id] = p
		}
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("failed to advance session: %w", err)
	}

	m.log.Info().Int("question_index", next).Msg("advanced to next question")
	m.startTimerLocked(next)
	return nil
}

// End finishes the session early, from the lobby or mid-question.
func (m *Machine) End(ctx context.Context, callerID string) error {
	if err := m.authorize(callerID, "end"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := Load(ctx, m.store, m.id)
	if err != nil {
		return err
	}
	if s.Status == models.SessionStatusFinished {
		return nil
	}
	return m.finishLocked(ctx, "ended by game master")
}

func (m *Machine) finishLocked(ctx context.Context, reason string) error {
	m.countdown.Stop()
	err := m.store.Update(ctx, Path(m.id), map[string]any{
		"status":        models.SessionStatusFinished,
		"timeRemaining": 0,
	})
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	m.log.Info().Str("reason", reason).Msg("session finished")
	return nil
}

// startTimerLocked replaces any running countdown with one for index.
func (m *Machine) startTimerLocked(index int) {
	m.countdown.Start(m.life, m.seconds, m.grace, timer.Hooks{
		OnTick: func(ctx context.Context, remaining int) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			err := m.store.Update(ctx, Path(m.id), map[string]any{"timeRemaining": remaining})
			if err != nil && ctx.Err() == nil {
				m.log.Error().Err(err).Int("time_remaining", remaining).Msg("failed to write timer tick")
			}
		},
		OnExpire: func(ctx context.Context) {
			m.log.Debug().Int("question_index", index).Dur("grace", m.grace).Msg("question expired, revealing answer")
		},
		OnRevealDone: func(ctx context.Context) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if err := m.advanceLocked(m.life); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Int("question_index", index).Msg("failed to auto-advance")
			}
		},
	})
}

// Close stops the timer. The session record is left as it is.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countdown.Stop()
	m.stop()
}
