// Package projection derives what each role sees from a session snapshot.
// Every function here is pure: a view is recomputed in full from the
// latest snapshot, never patched.
package projection

import (
	"github.com/mcdev12/quizsync/go/internal/models"
)

// MissingMessage is shown when the session node has been removed.
const MissingMessage = "Game ended or does not exist"

// RosterEntry is one player as shown in a roster or scoreboard.
type RosterEntry struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Answered  bool   `json:"answered"`
	JoinOrder int    `json:"join_order"`
	Rank      int    `json:"rank,omitempty"`
}

// QuestionView is a question without its answer.
type QuestionView struct {
	ID      string   `json:"id"`
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Controls gates the GM's buttons.
type Controls struct {
	CanStart   bool `json:"can_start"`
	CanAdvance bool `json:"can_advance"`
	CanEnd     bool `json:"can_end"`
}

type GMView struct {
	SessionID     string               `json:"session_id"`
	Missing       bool                 `json:"missing,omitempty"`
	Status        models.SessionStatus `json:"status,omitempty"`
	Category      string               `json:"category,omitempty"`
	Roster        []RosterEntry        `json:"roster"`
	Answered      int                  `json:"answered"`
	Question      *QuestionView        `json:"question,omitempty"`
	CorrectOption string               `json:"correct_option,omitempty"`
	TimeRemaining int                  `json:"time_remaining"`
	Controls      Controls             `json:"controls"`
	Scoreboard    []RosterEntry        `json:"scoreboard,omitempty"`
}

type PlayerPhase string

const (
	PhaseWaiting  PlayerPhase = "waiting"
	PhaseQuestion PlayerPhase = "question"
	// PhaseReveal is the window after time runs out and before the GM
	// advances, while the correct option is highlighted.
	PhaseReveal   PlayerPhase = "reveal"
	PhaseFinished PlayerPhase = "finished"
	PhaseMissing  PlayerPhase = "missing"
)

type PlayerView struct {
	SessionID     string        `json:"session_id"`
	PlayerID      string        `json:"player_id"`
	Phase         PlayerPhase   `json:"phase"`
	Joined        bool          `json:"joined"`
	Question      *QuestionView `json:"question,omitempty"`
	TimeRemaining int           `json:"time_remaining"`
	Score         int           `json:"score"`
	Answered      bool          `json:"answered"`
	CanAnswer     bool          `json:"can_answer"`
	CorrectOption string        `json:"correct_option,omitempty"`
	Scoreboard    []RosterEntry `json:"scoreboard,omitempty"`
	Message       string        `json:"message,omitempty"`
}

func questionView(s *models.Session) *QuestionView {
	q, ok := s.CurrentQuestion()
	if !ok {
		return nil
	}
	return &QuestionView{
		ID:      q.ID,
		Index:   s.CurrentQuestionIndex,
		Total:   len(s.Questions),
		Text:    q.Text,
		Options: append([]string(nil), q.Options...),
	}
}

// ProjectGameMaster builds the GM view. A nil session yields a missing view.
func ProjectGameMaster(sessionID string, s *models.Session) GMView {
	if s == nil {
		return GMView{SessionID: sessionID, Missing: true, Roster: []RosterEntry{}}
	}

	v := GMView{
		SessionID:     sessionID,
		Status:        s.Status,
		Category:      s.Settings.Category,
		Roster:        Roster(s.Players),
		TimeRemaining: s.TimeRemaining,
		Controls: Controls{
			CanStart:   s.Status == models.SessionStatusWaiting,
			CanAdvance: s.Status == models.SessionStatusActive,
			CanEnd:     s.Status != models.SessionStatusFinished,
		},
	}
	for _, p := range v.Roster {
		if p.Answered {
			v.Answered++
		}
	}

	switch s.Status {
	case models.SessionStatusActive:
		v.Question = questionView(s)
		if q, ok := s.CurrentQuestion(); ok && s.TimeRemaining <= 0 {
			v.CorrectOption = q.Correct
		}
	case models.SessionStatusFinished:
		v.Scoreboard = Rank(s.Players)
		v.TimeRemaining = 0
	}
	return v
}

// ProjectPlayer builds playerID's view. A nil session yields PhaseMissing.
func ProjectPlayer(sessionID, playerID string, s *models.Session) PlayerView {
	v := PlayerView{SessionID: sessionID, PlayerID: playerID}
	if s == nil {
		v.Phase = PhaseMissing
		v.Message = MissingMessage
		return v
	}

	me, joined := s.Players[playerID]
	v.Joined = joined
	v.Score = me.Score
	v.Answered = me.Answered

	switch s.Status {
	case models.SessionStatusWaiting:
		v.Phase = PhaseWaiting
	case models.SessionStatusActive:
		v.Question = questionView(s)
		v.TimeRemaining = s.TimeRemaining
		if s.TimeRemaining > 0 {
			v.Phase = PhaseQuestion
			v.CanAnswer = joined && !me.Answered && v.Question != nil
		} else {
			v.Phase = PhaseReveal
			if q, ok := s.CurrentQuestion(); ok {
				v.CorrectOption = q.Correct
			}
		}
	case models.SessionStatusFinished:
		v.Phase = PhaseFinished
		v.Scoreboard = Rank(s.Players)
	default:
		v.Phase = PhaseMissing
		v.Message = MissingMessage
	}
	return v
}
