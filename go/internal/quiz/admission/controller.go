// Package admission accepts at most one scored answer per player per
// question.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/session"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

const DefaultPointsPerCorrect = 100

// Submission is one player's answer to the question at QuestionIndex.
type Submission struct {
	SessionID     string
	PlayerID      string
	QuestionIndex int
	Option        string
}

// Result acknowledges an accepted submission.
type Result struct {
	Correct bool
	Awarded int
	Score   int
}

type Controller struct {
	store  store.Store
	points int
	log    zerolog.Logger
}

func NewController(st store.Store, pointsPerCorrect int, logger zerolog.Logger) *Controller {
	if pointsPerCorrect <= 0 {
		pointsPerCorrect = DefaultPointsPerCorrect
	}
	return &Controller{
		store:  st,
		points: pointsPerCorrect,
		log:    logger.With().Str("component", "admission").Logger(),
	}
}

// Submit validates and scores sub in one store transaction over the session
// node, so the index check, the answered flag and the score increment can
// never interleave with an advance or another submission.
//
// Rejections are ErrNoActiveQuestion, ErrStaleSubmission and
// ErrAlreadyAnswered (all silent), or ErrSessionNotFound.
func (c *Controller) Submit(ctx context.Context, sub Submission) (Result, error) {
	var res Result
	_, err := c.store.Transaction(ctx, session.Path(sub.SessionID), func(current any) (any, error) {
		res = Result{}
		if current == nil {
			return nil, quiz.ErrSessionNotFound
		}
		s, err := session.Decode(sub.SessionID, current)
		if err != nil {
			return nil, err
		}

		q, ok := s.CurrentQuestion()
		if s.Status != models.SessionStatusActive || !ok {
			return nil, quiz.ErrNoActiveQuestion
		}
		if sub.QuestionIndex != s.CurrentQuestionIndex || s.TimeRemaining <= 0 {
			return nil, quiz.ErrStaleSubmission
		}
		player, joined := s.Players[sub.PlayerID]
		if !joined {
			return nil, fmt.Errorf("%w: player %s has not joined", quiz.ErrPermissionDenied, sub.PlayerID)
		}
		if player.Answered {
			return nil, quiz.ErrAlreadyAnswered
		}

		res.Correct = q.IsCorrect(sub.Option)
		if res.Correct {
			res.Awarded = c.points
		}
		res.Score = player.Score + res.Awarded

		// The player id is opaque and may contain path separators, so the
		// record is changed on the decoded session, never through a path.
		player.Score = res.Score
		player.Answered = true
		s.Players[sub.PlayerID] = player
		return s, nil
	})

	logEvt := c.log.Debug()
	if err != nil && !quiz.IsSilent(err) {
		logEvt = c.log.Warn()
	}
	logEvt.
		Err(err).
		Str("session_id", sub.SessionID).
		Str("player_id", sub.PlayerID).
		Int("question_index", sub.QuestionIndex).
		Bool("correct", res.Correct).
		Int("awarded", res.Awarded).
		Msg("answer submitted")

	if err != nil {
		if errors.Is(err, quiz.ErrSessionNotFound) || quiz.IsSilent(err) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("failed to submit answer: %w", err)
	}
	return res, nil
}
