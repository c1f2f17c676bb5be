package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
	"github.com/mcdev12/quizsync/go/internal/quiz/store/memory"
	"github.com/mcdev12/quizsync/go/internal/quiz/timer"
)

const gm = "gm-1"

func testQuestions(n int) []models.Question {
	all := []models.Question{
		{ID: "q1", Text: "2+2?", Options: []string{"3", "4", "5", "6"}, Correct: "4"},
		{ID: "q2", Text: "Capital of France?", Options: []string{"Berlin", "Madrid", "Paris", "Rome"}, Correct: "Paris"},
		{ID: "q3", Text: "Red Planet?", Options: []string{"Earth", "Mars", "Jupiter", "Venus"}, Correct: "Mars"},
	}
	return all[:n]
}

func testSettings(seconds int) models.SessionSettings {
	return models.SessionSettings{Category: "adult", QuestionCount: 2, SecondsPerQuestion: seconds}
}

type fixture struct {
	store *store.DocStore
	clock *clockwork.FakeClock
	cfg   Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { st.Close() })
	clock := clockwork.NewFakeClock()
	return &fixture{
		store: st,
		clock: clock,
		cfg: Config{
			Store:       st,
			Clock:       clock,
			RevealGrace: 3 * time.Second,
			Logger:      zerolog.Nop(),
		},
	}
}

func (f *fixture) create(t *testing.T, questions int, seconds int) *Machine {
	t.Helper()
	m, err := Create(context.Background(), f.cfg, gm, testSettings(seconds), testQuestions(questions))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func (f *fixture) load(t *testing.T, id string) *models.Session {
	t.Helper()
	s, err := Load(context.Background(), f.store, id)
	require.NoError(t, err)
	return s
}

// drive advances the fake clock one second at a time until cond holds.
func (f *fixture) drive(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := f.clock.BlockUntilContext(ctx, 1)
		cancel()
		if err == nil {
			f.clock.Advance(time.Second)
		}
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("writes a waiting session", func(t *testing.T) {
		f := newFixture(t)
		m := f.create(t, 2, 10)

		s := f.load(t, m.ID())
		assert.Equal(t, models.SessionStatusWaiting, s.Status)
		assert.Equal(t, gm, s.GameMaster)
		assert.Equal(t, models.NoQuestion, s.CurrentQuestionIndex)
		assert.Empty(t, s.Players)
		assert.Empty(t, s.Questions, "questions are written on start")
		assert.Equal(t, testSettings(10), s.Settings)
		assert.True(t, s.Valid())
	})

	t.Run("refuses an empty question list", func(t *testing.T) {
		f := newFixture(t)
		_, err := Create(ctx, f.cfg, gm, testSettings(10), nil)
		assert.ErrorIs(t, err, quiz.ErrSupplyFailure)
	})

	t.Run("refuses invalid settings", func(t *testing.T) {
		f := newFixture(t)
		for name, s := range map[string]models.SessionSettings{
			"no category":  {QuestionCount: 2, SecondsPerQuestion: 10},
			"zero count":   {Category: "adult", QuestionCount: 0, SecondsPerQuestion: 10},
			"short timer":  {Category: "adult", QuestionCount: 2, SecondsPerQuestion: 1},
			"long timer":   {Category: "adult", QuestionCount: 2, SecondsPerQuestion: 301},
			"huge session": {Category: "adult", QuestionCount: 51, SecondsPerQuestion: 10},
		} {
			_, err := Create(ctx, f.cfg, gm, s, testQuestions(2))
			assert.ErrorIs(t, err, quiz.ErrInvalidSettings, name)
		}
	})
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t, 2, 10)

	require.NoError(t, f.store.Set(ctx, store.Join(Path(m.ID()), "players", "p1"), models.Player{Name: "Ann", JoinOrder: 1}))

	require.NoError(t, m.Start(ctx, gm))
	s := f.load(t, m.ID())
	assert.Equal(t, models.SessionStatusActive, s.Status)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.Equal(t, 10, s.TimeRemaining)
	assert.Len(t, s.Questions, 2)
	assert.Equal(t, "Ann", s.Players["p1"].Name)
	assert.Equal(t, timer.PhaseCounting, m.TimerPhase())

	err := m.Start(ctx, gm)
	assert.ErrorIs(t, err, quiz.ErrInvalidTransition)
}

func TestPermissionDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t, 2, 10)

	other, err := Open(ctx, f.cfg, m.ID())
	require.NoError(t, err)
	t.Cleanup(other.Close)

	assert.ErrorIs(t, other.Start(ctx, "p1"), quiz.ErrPermissionDenied)
	assert.ErrorIs(t, m.Advance(ctx, "p1"), quiz.ErrPermissionDenied)
	assert.ErrorIs(t, m.End(ctx, "p1"), quiz.ErrPermissionDenied)
	assert.True(t, quiz.IsSilent(quiz.ErrPermissionDenied))

	assert.Equal(t, models.SessionStatusWaiting, f.load(t, m.ID()).Status)
}

func TestOpenMissing(t *testing.T) {
	f := newFixture(t)
	_, err := Open(context.Background(), f.cfg, "nope")
	assert.ErrorIs(t, err, quiz.ErrSessionNotFound)
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t, 2, 10)

	assert.ErrorIs(t, m.Advance(ctx, gm), quiz.ErrInvalidTransition)

	require.NoError(t, f.store.Set(ctx, store.Join(Path(m.ID()), "players", "p1"), models.Player{Name: "Ann", JoinOrder: 1}))
	require.NoError(t, m.Start(ctx, gm))
	require.NoError(t, f.store.Update(ctx, Path(m.ID()), map[string]any{
		"players/p1/answered": true,
		"players/p1/score":    100,
	}))

	require.NoError(t, m.Advance(ctx, gm))
	s := f.load(t, m.ID())
	assert.Equal(t, 1, s.CurrentQuestionIndex)
	assert.Equal(t, 10, s.TimeRemaining)
	assert.False(t, s.Players["p1"].Answered)
	assert.Equal(t, 100, s.Players["p1"].Score)

	require.NoError(t, m.Advance(ctx, gm))
	s = f.load(t, m.ID())
	assert.Equal(t, models.SessionStatusFinished, s.Status)
	assert.Equal(t, 1, s.CurrentQuestionIndex)
	assert.Equal(t, timer.PhaseIdle, m.TimerPhase())

	require.NoError(t, m.Advance(ctx, gm), "advance after finish is a no-op")
	assert.Equal(t, models.SessionStatusFinished, f.load(t, m.ID()).Status)
}

func TestAdvance_PlayerIDWithSeparator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t, 2, 10)

	setPlayer := func(p models.Player) {
		_, err := f.store.Transaction(ctx, Path(m.ID()), func(current any) (any, error) {
			s, err := Decode(m.ID(), current)
			if err != nil {
				return nil, err
			}
			s.Players["team/ann"] = p
			return s, nil
		})
		require.NoError(t, err)
	}

	setPlayer(models.Player{Name: "Ann", JoinOrder: 1})
	require.NoError(t, m.Start(ctx, gm))
	setPlayer(models.Player{Name: "Ann", JoinOrder: 1, Score: 100, Answered: true})

	require.NoError(t, m.Advance(ctx, gm))
	s := f.load(t, m.ID())
	require.Len(t, s.Players, 1)
	assert.Equal(t, models.Player{Name: "Ann", JoinOrder: 1, Score: 100}, s.Players["team/ann"])
}

func TestEnd(t *testing.T) {
	ctx := context.Background()

	t.Run("from the lobby", func(t *testing.T) {
		f := newFixture(t)
		m := f.create(t, 2, 10)
		require.NoError(t, m.End(ctx, gm))
		assert.Equal(t, models.SessionStatusFinished, f.load(t, m.ID()).Status)
		require.NoError(t, m.End(ctx, gm))
	})

	t.Run("mid question stops the timer", func(t *testing.T) {
		f := newFixture(t)
		m := f.create(t, 3, 10)
		require.NoError(t, m.Start(ctx, gm))
		require.NoError(t, m.End(ctx, gm))

		s := f.load(t, m.ID())
		assert.Equal(t, models.SessionStatusFinished, s.Status)
		assert.Equal(t, 0, s.TimeRemaining)
		assert.Equal(t, timer.PhaseIdle, m.TimerPhase())

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, f.clock.BlockUntilContext(waitCtx, 0))
	})
}

func TestTimerTicksReachTheStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t, 2, 5)
	require.NoError(t, m.Start(ctx, gm))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	f.clock.Advance(time.Second)

	assert.Eventually(t, func() bool {
		return f.load(t, m.ID()).TimeRemaining == 4
	}, time.Second, 5*time.Millisecond)
}

func TestAutoAdvanceToFinish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t, 2, 5)
	require.NoError(t, m.Start(ctx, gm))

	var seen []int
	f.drive(t, func() bool {
		s := f.load(t, m.ID())
		if len(seen) == 0 || seen[len(seen)-1] != s.CurrentQuestionIndex {
			seen = append(seen, s.CurrentQuestionIndex)
		}
		return s.CurrentQuestionIndex == 1
	})

	f.drive(t, func() bool {
		s := f.load(t, m.ID())
		if seen[len(seen)-1] != s.CurrentQuestionIndex {
			seen = append(seen, s.CurrentQuestionIndex)
		}
		return s.Status == models.SessionStatusFinished
	})

	assert.Equal(t, []int{0, 1}, seen, "no question index is skipped")
	s := f.load(t, m.ID())
	assert.Equal(t, 1, s.CurrentQuestionIndex)
	assert.Equal(t, 0, s.TimeRemaining)
}
