package projection

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz/session"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

// Tracker keeps a client's view moving forward. Notifications may arrive
// coalesced or, across reconnects, out of order; Accept drops any snapshot
// that would move the session backwards.
type Tracker struct {
	mu       sync.Mutex
	seen     bool
	revision uint64
	rank     int
	index    int
}

// Accept reports whether s at revision should replace the current view.
func (t *Tracker) Accept(s *models.Session, revision uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seen && revision != 0 && revision < t.revision {
		return false
	}
	if s == nil {
		t.seen, t.revision, t.rank = true, revision, -1
		return true
	}

	rank := s.Status.Rank()
	if rank < 0 {
		return false
	}
	if t.seen && t.rank >= 0 {
		if rank < t.rank {
			return false
		}
		if rank == t.rank && s.CurrentQuestionIndex < t.index {
			return false
		}
	}
	t.seen, t.revision, t.rank, t.index = true, revision, rank, s.CurrentQuestionIndex
	return true
}

// Watch subscribes to a session node and calls fn with every accepted
// snapshot, nil once the node disappears. The returned subscription must be
// released with st.Unsubscribe or by cancelling ctx.
func Watch(ctx context.Context, st store.Store, sessionID string, log zerolog.Logger, fn func(s *models.Session)) (store.Subscription, error) {
	tracker := &Tracker{}
	sub, err := st.Subscribe(ctx, session.Path(sessionID), func(snap store.Snapshot) {
		var s *models.Session
		if snap.Exists() {
			decoded, err := session.Decode(sessionID, snap.Value)
			if err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("ignoring undecodable snapshot")
				return
			}
			s = decoded
		}
		if !tracker.Accept(s, snap.Revision) {
			log.Debug().Str("session_id", sessionID).Uint64("revision", snap.Revision).Msg("dropped out of order snapshot")
			return
		}
		fn(s)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch session %s: %w", sessionID, err)
	}
	return sub, nil
}
