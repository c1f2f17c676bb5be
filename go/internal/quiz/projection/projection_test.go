package projection

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz/session"
	"github.com/mcdev12/quizsync/go/internal/quiz/store/memory"
)

func players(scores map[string][2]int) map[string]models.Player {
	out := make(map[string]models.Player, len(scores))
	for id, v := range scores {
		out[id] = models.Player{Name: id, Score: v[0], JoinOrder: v[1]}
	}
	return out
}

func ids(entries []RosterEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PlayerID
	}
	return out
}

func TestRank(t *testing.T) {
	t.Run("descending score, ties by join order", func(t *testing.T) {
		ranked := Rank(players(map[string][2]int{
			"A": {30, 1},
			"B": {100, 2},
			"C": {100, 3},
			"D": {0, 4},
		}))
		assert.Equal(t, []string{"B", "C", "A", "D"}, ids(ranked))
		assert.Equal(t, []int{1, 1, 3, 4}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank, ranked[3].Rank})
	})

	t.Run("tie order follows join order, not id", func(t *testing.T) {
		ranked := Rank(players(map[string][2]int{
			"zed":   {50, 1},
			"alice": {50, 2},
		}))
		assert.Equal(t, []string{"zed", "alice"}, ids(ranked))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Rank(nil))
	})
}

func activeSession() *models.Session {
	return &models.Session{
		ID:         "s1",
		Status:     models.SessionStatusActive,
		GameMaster: "gm",
		Settings:   models.SessionSettings{Category: "kids", QuestionCount: 2, SecondsPerQuestion: 10},
		Questions: []models.Question{
			{ID: "kq1", Text: "What sound does a cat make?", Options: []string{"Woof", "Meow", "Moo", "Roar"}, Correct: "Meow"},
			{ID: "kq2", Text: "What color is the sky?", Options: []string{"Green", "Red", "Blue", "Yellow"}, Correct: "Blue"},
		},
		CurrentQuestionIndex: 1,
		TimeRemaining:        6,
		Players: map[string]models.Player{
			"p1": {Name: "Ann", Score: 100, Answered: true, JoinOrder: 1},
			"p2": {Name: "Bob", Score: 0, JoinOrder: 2},
		},
	}
}

func TestProjectPlayer(t *testing.T) {
	t.Run("waiting", func(t *testing.T) {
		s := activeSession()
		s.Status, s.CurrentQuestionIndex, s.Questions = models.SessionStatusWaiting, models.NoQuestion, nil
		v := ProjectPlayer("s1", "p2", s)
		assert.Equal(t, PhaseWaiting, v.Phase)
		assert.Nil(t, v.Question)
		assert.False(t, v.CanAnswer)
		assert.True(t, v.Joined)
	})

	t.Run("question open", func(t *testing.T) {
		v := ProjectPlayer("s1", "p2", activeSession())
		assert.Equal(t, PhaseQuestion, v.Phase)
		require.NotNil(t, v.Question)
		assert.Equal(t, "What color is the sky?", v.Question.Text)
		assert.Equal(t, 1, v.Question.Index)
		assert.Equal(t, 2, v.Question.Total)
		assert.Equal(t, 6, v.TimeRemaining)
		assert.True(t, v.CanAnswer)
		assert.Empty(t, v.CorrectOption, "answer hidden while the question is open")
	})

	t.Run("already answered", func(t *testing.T) {
		v := ProjectPlayer("s1", "p1", activeSession())
		assert.True(t, v.Answered)
		assert.False(t, v.CanAnswer)
		assert.Equal(t, 100, v.Score)
	})

	t.Run("spectator cannot answer", func(t *testing.T) {
		v := ProjectPlayer("s1", "nobody", activeSession())
		assert.False(t, v.Joined)
		assert.False(t, v.CanAnswer)
	})

	t.Run("reveal", func(t *testing.T) {
		s := activeSession()
		s.TimeRemaining = 0
		v := ProjectPlayer("s1", "p2", s)
		assert.Equal(t, PhaseReveal, v.Phase)
		assert.Equal(t, "Blue", v.CorrectOption)
		assert.False(t, v.CanAnswer)
	})

	t.Run("finished", func(t *testing.T) {
		s := activeSession()
		s.Status = models.SessionStatusFinished
		v := ProjectPlayer("s1", "p2", s)
		assert.Equal(t, PhaseFinished, v.Phase)
		assert.Equal(t, []string{"p1", "p2"}, ids(v.Scoreboard))
	})

	t.Run("missing", func(t *testing.T) {
		v := ProjectPlayer("s1", "p2", nil)
		assert.Equal(t, PhaseMissing, v.Phase)
		assert.Equal(t, MissingMessage, v.Message)
	})
}

func TestProjectGameMaster(t *testing.T) {
	t.Run("lobby", func(t *testing.T) {
		s := activeSession()
		s.Status, s.CurrentQuestionIndex = models.SessionStatusWaiting, models.NoQuestion
		v := ProjectGameMaster("s1", s)
		assert.Equal(t, "s1", v.SessionID)
		assert.Equal(t, Controls{CanStart: true, CanEnd: true}, v.Controls)
		assert.Equal(t, []string{"p1", "p2"}, ids(v.Roster))
		assert.Nil(t, v.Question)
	})

	t.Run("active", func(t *testing.T) {
		v := ProjectGameMaster("s1", activeSession())
		assert.Equal(t, Controls{CanAdvance: true, CanEnd: true}, v.Controls)
		require.NotNil(t, v.Question)
		assert.Equal(t, "kq2", v.Question.ID)
		assert.Equal(t, 1, v.Answered)
		assert.Empty(t, v.CorrectOption)
	})

	t.Run("finished", func(t *testing.T) {
		s := activeSession()
		s.Status = models.SessionStatusFinished
		v := ProjectGameMaster("s1", s)
		assert.Equal(t, Controls{}, v.Controls)
		assert.Equal(t, []string{"p1", "p2"}, ids(v.Scoreboard))
		assert.Zero(t, v.TimeRemaining)
	})

	t.Run("missing", func(t *testing.T) {
		v := ProjectGameMaster("s1", nil)
		assert.True(t, v.Missing)
	})
}

func TestTracker(t *testing.T) {
	waiting := &models.Session{Status: models.SessionStatusWaiting, CurrentQuestionIndex: -1}
	q0 := &models.Session{Status: models.SessionStatusActive, CurrentQuestionIndex: 0}
	q1 := &models.Session{Status: models.SessionStatusActive, CurrentQuestionIndex: 1}
	done := &models.Session{Status: models.SessionStatusFinished, CurrentQuestionIndex: 1}

	var tr Tracker
	assert.True(t, tr.Accept(waiting, 1))
	assert.True(t, tr.Accept(q0, 2))
	assert.True(t, tr.Accept(q0, 3), "same question, new tick")
	assert.True(t, tr.Accept(q1, 5))
	assert.False(t, tr.Accept(q0, 6), "index went backwards")
	assert.False(t, tr.Accept(q1, 4), "older revision")
	assert.False(t, tr.Accept(waiting, 7), "status went backwards")
	assert.True(t, tr.Accept(done, 8))
	assert.False(t, tr.Accept(q1, 9))
	assert.True(t, tr.Accept(nil, 10))
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	defer st.Close()

	s := activeSession()
	s.Status, s.CurrentQuestionIndex, s.Questions = models.SessionStatusWaiting, models.NoQuestion, nil
	require.NoError(t, st.Set(ctx, session.Path("s1"), s))

	got := make(chan *models.Session, 8)
	sub, err := Watch(ctx, st, "s1", zerolog.Nop(), func(s *models.Session) { got <- s })
	require.NoError(t, err)
	defer st.Unsubscribe(sub)

	first := next(t, got)
	require.NotNil(t, first)
	assert.Equal(t, "s1", first.ID)
	assert.Equal(t, models.SessionStatusWaiting, first.Status)

	require.NoError(t, st.Set(ctx, session.Path("s1"), nil))
	assert.Nil(t, next(t, got))
}

func next(t *testing.T, ch <-chan *models.Session) *models.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
		return nil
	}
}
