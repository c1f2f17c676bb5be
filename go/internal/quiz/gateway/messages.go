package gateway

import (
	"encoding/json"

	"github.com/mcdev12/quizsync/go/internal/models"
)

// CommandType is what a browser asks its session client to do.
type CommandType string

const (
	CommandCreate  CommandType = "create"
	CommandJoin    CommandType = "join"
	CommandStart   CommandType = "start"
	CommandAdvance CommandType = "advance"
	CommandEnd     CommandType = "end"
	CommandAnswer  CommandType = "answer"
)

// Command is one message read from the socket.
type Command struct {
	Type      CommandType             `json:"type"`
	RequestID string                  `json:"request_id,omitempty"`
	Settings  *models.SessionSettings `json:"settings,omitempty"`
	Code      string                  `json:"code,omitempty"`
	Option    string                  `json:"option,omitempty"`
}

// MessageType tags everything written to the socket.
type MessageType string

const (
	MessageView  MessageType = "view"
	MessageAck   MessageType = "ack"
	MessageError MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Command   CommandType     `json:"command,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Role      string          `json:"role,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CreatedPayload acknowledges a create command.
type CreatedPayload struct {
	Code string `json:"code"`
}

// AnswerPayload acknowledges an accepted answer.
type AnswerPayload struct {
	Correct bool `json:"correct"`
	Awarded int  `json:"awarded"`
	Score   int  `json:"score"`
}
