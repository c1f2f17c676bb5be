package client

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/projection"
	"github.com/mcdev12/quizsync/go/internal/quiz/questions"
	"github.com/mcdev12/quizsync/go/internal/quiz/session"
	"github.com/mcdev12/quizsync/go/internal/quiz/store/memory"
)

type emptySupplier struct{}

func (emptySupplier) FetchQuestions(context.Context, string, int) ([]models.Question, error) {
	return nil, nil
}

type recorder struct {
	gm     chan projection.GMView
	player chan projection.PlayerView
}

func newRecorder() *recorder {
	return &recorder{
		gm:     make(chan projection.GMView, 256),
		player: make(chan projection.PlayerView, 256),
	}
}

func (r *recorder) RenderGameMaster(v projection.GMView)   { r.gm <- v }
func (r *recorder) RenderPlayer(v projection.PlayerView) { r.player <- v }

func (r *recorder) waitPlayer(t *testing.T, cond func(projection.PlayerView) bool) projection.PlayerView {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v := <-r.player:
			if cond(v) {
				return v
			}
		case <-timeout:
			t.Fatal("player view never matched")
			return projection.PlayerView{}
		}
	}
}

func (r *recorder) waitGM(t *testing.T, cond func(projection.GMView) bool) projection.GMView {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v := <-r.gm:
			if cond(v) {
				return v
			}
		case <-timeout:
			t.Fatal("GM view never matched")
			return projection.GMView{}
		}
	}
}

func newConfig(t *testing.T) Config {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { st.Close() })
	return Config{
		Store:       st,
		Supplier:    questions.DefaultBank().WithRand(rand.New(rand.NewSource(7))),
		Clock:       clockwork.NewFakeClock(),
		RevealGrace: time.Second,
		Logger:      zerolog.Nop(),
	}
}

func newClient(t *testing.T, cfg Config, id, name string) *SessionClient {
	t.Helper()
	c := New(cfg, Identity{PlayerID: id, Name: name})
	t.Cleanup(c.Close)
	return c
}

var settings = models.SessionSettings{Category: "kids", QuestionCount: 3, SecondsPerQuestion: 30}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a code", func(t *testing.T) {
		cfg := newConfig(t)
		gm := newClient(t, cfg, "gm", "Host")
		code, err := gm.CreateSession(ctx, settings)
		require.NoError(t, err)
		assert.NotEmpty(t, code)
		assert.Equal(t, RoleGameMaster, gm.Role())
		assert.Equal(t, code, gm.SessionID())

		_, err = gm.CreateSession(ctx, settings)
		assert.ErrorIs(t, err, ErrAlreadyInSession)
	})

	t.Run("no questions is a supply failure", func(t *testing.T) {
		cfg := newConfig(t)
		cfg.Supplier = emptySupplier{}
		gm := newClient(t, cfg, "gm", "Host")
		_, err := gm.CreateSession(ctx, settings)
		assert.ErrorIs(t, err, quiz.ErrSupplyFailure)
		assert.Empty(t, gm.SessionID())
	})

	t.Run("unknown category is a supply failure", func(t *testing.T) {
		cfg := newConfig(t)
		gm := newClient(t, cfg, "gm", "Host")
		_, err := gm.CreateSession(ctx, models.SessionSettings{Category: "opera", QuestionCount: 3, SecondsPerQuestion: 30})
		assert.ErrorIs(t, err, quiz.ErrSupplyFailure)
	})
}

func TestJoinSession(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t)
	gm := newClient(t, cfg, "gm", "Host")
	code, err := gm.CreateSession(ctx, settings)
	require.NoError(t, err)

	t.Run("unknown code", func(t *testing.T) {
		p := newClient(t, cfg, "px", "X")
		assert.ErrorIs(t, p.JoinSession(ctx, "doesNotExist"), quiz.ErrSessionNotFound)
		assert.ErrorIs(t, p.JoinSession(ctx, "  "), quiz.ErrSessionNotFound)
		assert.ErrorIs(t, p.JoinSession(ctx, "bad/code"), quiz.ErrSessionNotFound)
	})

	ann := newClient(t, cfg, "p1", "Ann")
	require.NoError(t, ann.JoinSession(ctx, " "+code+" "))
	bob := newClient(t, cfg, "p2", "Bob")
	require.NoError(t, bob.JoinSession(ctx, code))

	s, err := session.Load(ctx, cfg.Store, code)
	require.NoError(t, err)
	assert.Equal(t, models.Player{Name: "Ann", JoinOrder: 1}, s.Players["p1"])
	assert.Equal(t, models.Player{Name: "Bob", JoinOrder: 2}, s.Players["p2"])
	assert.NotContains(t, s.Players, "gm")

	t.Run("game master cannot join their own lobby", func(t *testing.T) {
		tab := newClient(t, cfg, "gm", "Host")
		err := tab.JoinSession(ctx, code)
		assert.ErrorIs(t, err, ErrOwnSession)
		assert.NotErrorIs(t, err, quiz.ErrNotJoinable)
	})

	require.NoError(t, gm.Start(ctx))

	t.Run("started session is not joinable", func(t *testing.T) {
		late := newClient(t, cfg, "p3", "Cy")
		assert.ErrorIs(t, late.JoinSession(ctx, code), quiz.ErrNotJoinable)
	})

	t.Run("rejoin keeps the record", func(t *testing.T) {
		again := newClient(t, cfg, "p1", "Ann")
		require.NoError(t, again.JoinSession(ctx, code))
		s, err := session.Load(ctx, cfg.Store, code)
		require.NoError(t, err)
		assert.Equal(t, 1, s.Players["p1"].JoinOrder)
		assert.Len(t, s.Players, 2)
	})
}

func TestPlayerCannotDriveSession(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t)
	gm := newClient(t, cfg, "gm", "Host")
	code, err := gm.CreateSession(ctx, settings)
	require.NoError(t, err)

	p := newClient(t, cfg, "p1", "Ann")
	require.NoError(t, p.JoinSession(ctx, code))

	assert.ErrorIs(t, p.Start(ctx), quiz.ErrPermissionDenied)
	assert.ErrorIs(t, p.Advance(ctx), quiz.ErrPermissionDenied)
	assert.ErrorIs(t, p.End(ctx), quiz.ErrPermissionDenied)

	_, err = gm.SubmitAnswer(ctx, "x")
	assert.ErrorIs(t, err, quiz.ErrPermissionDenied)

	s, err := session.Load(ctx, cfg.Store, code)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusWaiting, s.Status)

	lone := newClient(t, cfg, "p9", "Nobody")
	assert.ErrorIs(t, lone.Start(ctx), quiz.ErrSessionNotFound)
}

func TestFullGame(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t)

	gm := newClient(t, cfg, "gm", "Host")
	code, err := gm.CreateSession(ctx, settings)
	require.NoError(t, err)
	gmView := newRecorder()
	require.NoError(t, gm.Watch(ctx, gmView))

	ann := newClient(t, cfg, "p1", "Ann")
	require.NoError(t, ann.JoinSession(ctx, code))
	annView := newRecorder()
	require.NoError(t, ann.Watch(ctx, annView))

	bob := newClient(t, cfg, "p2", "Bob")
	require.NoError(t, bob.JoinSession(ctx, code))
	bobView := newRecorder()
	require.NoError(t, bob.Watch(ctx, bobView))

	lobby := gmView.waitGM(t, func(v projection.GMView) bool { return len(v.Roster) == 2 })
	assert.Equal(t, code, lobby.SessionID)
	assert.True(t, lobby.Controls.CanStart)

	_, err = ann.SubmitAnswer(ctx, "Meow")
	assert.ErrorIs(t, err, quiz.ErrNoActiveQuestion)

	require.NoError(t, gm.Start(ctx))

	q := annView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Phase == projection.PhaseQuestion })
	require.NotNil(t, q.Question)
	bobView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Phase == projection.PhaseQuestion })

	s, err := session.Load(ctx, cfg.Store, code)
	require.NoError(t, err)
	current, ok := s.CurrentQuestion()
	require.True(t, ok)
	wrong := current.Options[0]
	if wrong == current.Correct {
		wrong = current.Options[1]
	}

	res, err := ann.SubmitAnswer(ctx, current.Correct)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Awarded)

	res, err = bob.SubmitAnswer(ctx, wrong)
	require.NoError(t, err)
	assert.Zero(t, res.Awarded)

	answered := annView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Answered })
	assert.Equal(t, 100, answered.Score)
	assert.False(t, answered.CanAnswer)

	_, err = ann.SubmitAnswer(ctx, current.Correct)
	assert.ErrorIs(t, err, quiz.ErrAlreadyAnswered)

	require.NoError(t, gm.Advance(ctx))
	next := annView.waitPlayer(t, func(v projection.PlayerView) bool {
		return v.Question != nil && v.Question.Index == 1
	})
	assert.True(t, next.CanAnswer)
	assert.Equal(t, 100, next.Score)

	require.NoError(t, gm.End(ctx))
	final := bobView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Phase == projection.PhaseFinished })
	require.Len(t, final.Scoreboard, 2)
	assert.Equal(t, "p1", final.Scoreboard[0].PlayerID)
	assert.Equal(t, 100, final.Scoreboard[0].Score)

	gmFinal := gmView.waitGM(t, func(v projection.GMView) bool { return v.Status == models.SessionStatusFinished })
	assert.False(t, gmFinal.Controls.CanEnd)
}

func TestSubmitAnswer_RevealWindow(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t)
	gm := newClient(t, cfg, "gm", "Host")
	code, err := gm.CreateSession(ctx, settings)
	require.NoError(t, err)

	ann := newClient(t, cfg, "p1", "Ann")
	require.NoError(t, ann.JoinSession(ctx, code))
	annView := newRecorder()
	require.NoError(t, ann.Watch(ctx, annView))

	require.NoError(t, gm.Start(ctx))
	q := annView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Phase == projection.PhaseQuestion })
	require.NotNil(t, q.Question)

	// The fake clock never ticks, so this is the only write to the timer.
	require.NoError(t, cfg.Store.Update(ctx, session.Path(code), map[string]any{"timeRemaining": 0}))
	reveal := annView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Phase == projection.PhaseReveal })
	assert.False(t, reveal.CanAnswer)

	_, err = ann.SubmitAnswer(ctx, q.Question.Options[0])
	assert.ErrorIs(t, err, quiz.ErrStaleSubmission)

	s, err := session.Load(ctx, cfg.Store, code)
	require.NoError(t, err)
	assert.Equal(t, models.Player{Name: "Ann", JoinOrder: 1}, s.Players["p1"])
}

func TestPlayerIDWithSeparator(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t)
	gm := newClient(t, cfg, "gm", "Host")
	code, err := gm.CreateSession(ctx, settings)
	require.NoError(t, err)

	ann := newClient(t, cfg, "team/ann", "Ann")
	require.NoError(t, ann.JoinSession(ctx, code))
	annView := newRecorder()
	require.NoError(t, ann.Watch(ctx, annView))

	require.NoError(t, gm.Start(ctx))
	annView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Phase == projection.PhaseQuestion })

	s, err := session.Load(ctx, cfg.Store, code)
	require.NoError(t, err)
	current, ok := s.CurrentQuestion()
	require.True(t, ok)

	res, err := ann.SubmitAnswer(ctx, current.Correct)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	annView.waitPlayer(t, func(v projection.PlayerView) bool { return v.Answered })

	_, err = ann.SubmitAnswer(ctx, current.Correct)
	assert.ErrorIs(t, err, quiz.ErrAlreadyAnswered)

	require.NoError(t, gm.Advance(ctx))
	next := annView.waitPlayer(t, func(v projection.PlayerView) bool {
		return v.Question != nil && v.Question.Index == 1
	})
	assert.True(t, next.CanAnswer)
	assert.Equal(t, 100, next.Score)

	s, err = session.Load(ctx, cfg.Store, code)
	require.NoError(t, err)
	assert.Len(t, s.Players, 1)
}

func TestWatchRequiresSession(t *testing.T) {
	c := newClient(t, newConfig(t), "p1", "Ann")
	assert.ErrorIs(t, c.Watch(context.Background(), newRecorder()), quiz.ErrSessionNotFound)
}
