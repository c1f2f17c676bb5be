package session

import (
	"context"
	"fmt"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

// Root is the store node every session lives under.
const Root = "games"

// Path returns the store path of a session node.
func Path(sessionID string) string {
	return store.Join(Root, sessionID)
}

// Decode converts a session node value into a Session. A nil value is
// reported as ErrSessionNotFound.
func Decode(sessionID string, value any) (*models.Session, error) {
	if value == nil {
		return nil, quiz.ErrSessionNotFound
	}
	var s models.Session
	if err := store.Decode(value, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	s.ID = sessionID
	if s.Players == nil {
		s.Players = map[string]models.Player{}
	}
	return &s, nil
}

// Load reads the current session record.
func Load(ctx context.Context, st store.Store, sessionID string) (*models.Session, error) {
	value, err := st.Get(ctx, Path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	return Decode(sessionID, value)
}
