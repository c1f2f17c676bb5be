package models

import (
	"time"
)

// SessionStatus defines the lifecycle phase of a quiz session.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
)

// Rank orders statuses along the only legal path waiting -> active -> finished.
func (s SessionStatus) Rank() int {
	switch s {
	case SessionStatusWaiting:
		return 0
	case SessionStatusActive:
		return 1
	case SessionStatusFinished:
		return 2
	default:
		return -1
	}
}

// NoQuestion is the currentQuestionIndex of a session that has not started.
const NoQuestion = -1

// SessionSettings is fixed when the session is created.
type SessionSettings struct {
	Category           string `json:"category" validate:"required"`
	QuestionCount      int    `json:"questionCount" validate:"min=1,max=50"`
	SecondsPerQuestion int    `json:"secondsPerQuestion" validate:"min=5,max=300"`
	DisplayOption      string `json:"displayOption,omitempty"`
}

// Session is the shared record every client derives its view from.
type Session struct {
	ID                   string            `json:"-"`
	Status               SessionStatus     `json:"status"`
	GameMaster           string            `json:"gameMaster"`
	Settings             SessionSettings   `json:"settings"`
	Questions            []Question        `json:"questions,omitempty"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	TimeRemaining        int               `json:"timeRemaining"`
	Players              map[string]Player `json:"players"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// CurrentQuestion returns the question being asked, if the index resolves.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// Valid reports whether currentQuestionIndex and questions agree with status.
func (s *Session) Valid() bool {
	switch s.Status {
	case SessionStatusWaiting:
		return s.CurrentQuestionIndex == NoQuestion
	case SessionStatusActive:
		return len(s.Questions) > 0 && s.CurrentQuestionIndex >= 0 && s.CurrentQuestionIndex < len(s.Questions)
	case SessionStatusFinished:
		return s.CurrentQuestionIndex < len(s.Questions)
	default:
		return false
	}
}
