// Package client is what one connected user drives: it composes the
// question supplier, the state machine, the admission controller and the
// view projection behind a single SessionClient.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/admission"
	"github.com/mcdev12/quizsync/go/internal/quiz/projection"
	"github.com/mcdev12/quizsync/go/internal/quiz/questions"
	"github.com/mcdev12/quizsync/go/internal/quiz/session"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
	"github.com/mcdev12/quizsync/go/internal/quiz/timer"
)

// ErrAlreadyInSession is returned when a client that already hosts or
// joined a session tries to create or join another one.
var ErrAlreadyInSession = errors.New("client is already in a session")

// ErrOwnSession is returned when a game master tries to join their own
// session as a player.
var ErrOwnSession = errors.New("the game master cannot join their own session")

// Identity is what the identity provider supplies for a connected client.
type Identity struct {
	PlayerID string
	Name     string
}

type Role string

const (
	RoleNone       Role = ""
	RoleGameMaster Role = "game_master"
	RolePlayer     Role = "player"
)

// Renderer receives a freshly projected view after every accepted change.
// Calls come from the store's delivery goroutine, one at a time.
type Renderer interface {
	RenderGameMaster(view projection.GMView)
	RenderPlayer(view projection.PlayerView)
}

type Config struct {
	Store            store.Store
	Supplier         questions.Supplier
	Clock            timer.Clock
	RevealGrace      time.Duration
	PointsPerCorrect int
	Logger           zerolog.Logger
}

// SessionClient holds everything one client knows about its session. It
// replaces process-wide game state: a process may run any number of them.
type SessionClient struct {
	cfg       Config
	identity  Identity
	admission *admission.Controller
	log       zerolog.Logger

	mu        sync.Mutex
	role      Role
	sessionID string
	machine   *session.Machine
	last      *models.Session
	sub       store.Subscription
}

func New(cfg Config, identity Identity) *SessionClient {
	return &SessionClient{
		cfg:       cfg,
		identity:  identity,
		admission: admission.NewController(cfg.Store, cfg.PointsPerCorrect, cfg.Logger),
		log: cfg.Logger.With().
			Str("component", "client").
			Str("player_id", identity.PlayerID).
			Logger(),
	}
}

func (c *SessionClient) Identity() Identity { return c.identity }

func (c *SessionClient) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *SessionClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// CreateSession fetches questions and writes a new waiting session with
// this client as game master. It returns the shareable session code.
func (c *SessionClient) CreateSession(ctx context.Context, settings models.SessionSettings) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		return "", ErrAlreadyInSession
	}

	if err := session.ValidateSettings(settings); err != nil {
		return "", err
	}
	qs, err := c.cfg.Supplier.FetchQuestions(ctx, settings.Category, settings.QuestionCount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", quiz.ErrSupplyFailure, err)
	}

	m, err := session.Create(ctx, session.Config{
		Store:       c.cfg.Store,
		Clock:       c.cfg.Clock,
		RevealGrace: c.cfg.RevealGrace,
		Logger:      c.cfg.Logger,
	}, c.identity.PlayerID, settings, qs)
	if err != nil {
		return "", err
	}

	c.machine = m
	c.role = RoleGameMaster
	c.sessionID = m.ID()
	return m.ID(), nil
}

// JoinSession adds this client to a waiting session. Joining a session the
// player is already in keeps the existing record, whatever the status.
func (c *SessionClient) JoinSession(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		return ErrAlreadyInSession
	}
	if code == "" || strings.Contains(code, "/") {
		return quiz.ErrSessionNotFound
	}
	if _, _, err := store.SplitPath(session.Path(code)); err != nil {
		return quiz.ErrSessionNotFound
	}

	rejoined := false
	_, err := c.cfg.Store.Transaction(ctx, session.Path(code), func(current any) (any, error) {
		rejoined = false
		s, err := session.Decode(code, current)
		if err != nil {
			return nil, err
		}
		if _, ok := s.Players[c.identity.PlayerID]; ok {
			rejoined = true
			return current, nil
		}
		if s.GameMaster == c.identity.PlayerID {
			return nil, ErrOwnSession
		}
		if s.Status != models.SessionStatusWaiting {
			return nil, quiz.ErrNotJoinable
		}

		order := 0
		for _, p := range s.Players {
			order = max(order, p.JoinOrder)
		}
		s.Players[c.identity.PlayerID] = models.Player{
			Name:      c.identity.Name,
			JoinOrder: order + 1,
		}
		return s, nil
	})
	if err != nil {
		if errors.Is(err, quiz.ErrSessionNotFound) || errors.Is(err, quiz.ErrNotJoinable) || errors.Is(err, ErrOwnSession) {
			return err
		}
		return fmt.Errorf("failed to join session: %w", err)
	}

	c.role = RolePlayer
	c.sessionID = code
	c.log.Info().Str("session_id", code).Bool("rejoined", rejoined).Msg("joined session")
	return nil
}

func (c *SessionClient) gmMachine() (*session.Machine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return nil, quiz.ErrSessionNotFound
	}
	if c.machine == nil {
		c.log.Warn().Str("session_id", c.sessionID).Msg("player attempted a GM-only action")
		return nil, quiz.ErrPermissionDenied
	}
	return c.machine, nil
}

func (c *SessionClient) Start(ctx context.Context) error {
	m, err := c.gmMachine()
	if err != nil {
		return err
	}
	return m.Start(ctx, c.identity.PlayerID)
}

func (c *SessionClient) Advance(ctx context.Context) error {
	m, err := c.gmMachine()
	if err != nil {
		return err
	}
	return m.Advance(ctx, c.identity.PlayerID)
}

func (c *SessionClient) End(ctx context.Context) error {
	m, err := c.gmMachine()
	if err != nil {
		return err
	}
	return m.End(ctx, c.identity.PlayerID)
}

// SubmitAnswer answers the question this client is currently showing. The
// local check mirrors what the player sees; the admission controller
// re-validates everything against the store.
func (c *SessionClient) SubmitAnswer(ctx context.Context, option string) (admission.Result, error) {
	c.mu.Lock()
	sessionID, role, last := c.sessionID, c.role, c.last
	c.mu.Unlock()

	if sessionID == "" {
		return admission.Result{}, quiz.ErrSessionNotFound
	}
	if role != RolePlayer {
		return admission.Result{}, quiz.ErrPermissionDenied
	}
	if last == nil {
		var err error
		if last, err = session.Load(ctx, c.cfg.Store, sessionID); err != nil {
			return admission.Result{}, err
		}
	}

	view := projection.ProjectPlayer(sessionID, c.identity.PlayerID, last)
	switch {
	case view.Answered:
		return admission.Result{}, quiz.ErrAlreadyAnswered
	case view.Phase == projection.PhaseReveal:
		return admission.Result{}, quiz.ErrStaleSubmission
	case !view.CanAnswer:
		return admission.Result{}, quiz.ErrNoActiveQuestion
	}

	return c.admission.Submit(ctx, admission.Submission{
		SessionID:     sessionID,
		PlayerID:      c.identity.PlayerID,
		QuestionIndex: last.CurrentQuestionIndex,
		Option:        option,
	})
}

// Watch starts rendering the session to r. It replaces any earlier watch.
func (c *SessionClient) Watch(ctx context.Context, r Renderer) error {
	c.mu.Lock()
	sessionID, role, old := c.sessionID, c.role, c.sub
	c.sub = nil
	c.mu.Unlock()

	if sessionID == "" {
		return quiz.ErrSessionNotFound
	}
	if old != nil {
		_ = c.cfg.Store.Unsubscribe(old)
	}

	sub, err := projection.Watch(ctx, c.cfg.Store, sessionID, c.log, func(s *models.Session) {
		c.mu.Lock()
		c.last = s
		c.mu.Unlock()

		if role == RoleGameMaster {
			r.RenderGameMaster(projection.ProjectGameMaster(sessionID, s))
		} else {
			r.RenderPlayer(projection.ProjectPlayer(sessionID, c.identity.PlayerID, s))
		}
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// Close releases the subscription and stops a GM's timer. The session record
// itself is left for other clients.
func (c *SessionClient) Close() {
	c.mu.Lock()
	sub, m := c.sub, c.machine
	c.sub, c.machine = nil, nil
	c.mu.Unlock()

	if sub != nil {
		_ = c.cfg.Store.Unsubscribe(sub)
	}
	if m != nil {
		m.Close()
	}
}
