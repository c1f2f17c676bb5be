// Package store is the contract the quiz core has with the shared,
// replicated session tree, plus the document engine every backend plugs into.
//
// Paths are slash separated ("games/<id>/players/<pid>/score"). The first
// two segments name a document; everything below is addressed inside it.
// Every write to a document is a compare-and-swap on its revision, which is
// what makes Update multi-key atomic and Transaction safe under concurrent
// writers from different clients.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidPath = errors.New("invalid store path")
	// ErrConflict means the document changed between read and write. The
	// engine retries it; callers only see it once retries are exhausted.
	ErrConflict = errors.New("document revision conflict")
	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("store closed")
)

// Store is the shared session store as the quiz core consumes it.
type Store interface {
	// NewKey returns a fresh, time-ordered child key for parent.
	NewKey(ctx context.Context, parent string) (string, error)
	Set(ctx context.Context, path string, value any) error
	// Update applies every field (a path relative to path) in one atomic write.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Transaction replaces the value at path with fn(current). fn may run
	// more than once and must be free of side effects. If fn returns an
	// error nothing is written and that error is returned.
	Transaction(ctx context.Context, path string, fn func(current any) (any, error)) (any, error)
	Get(ctx context.Context, path string) (any, error)
	// Subscribe calls onChange with the current value at path and again
	// whenever it changes. Rapid writes may be coalesced into one call.
	Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (Subscription, error)
	// Unsubscribe releases a subscription; no new callbacks start afterwards.
	Unsubscribe(sub Subscription) error
}

// Subscription is the handle returned by Subscribe. Holders must release it
// with Store.Unsubscribe or by cancelling the context given to Subscribe.
type Subscription interface {
	ID() string
	Path() string
	// Done is closed once the delivery goroutine has exited.
	Done() <-chan struct{}
}

// Snapshot is the value at a path as of one notification.
type Snapshot struct {
	Path     string
	Value    any
	Revision uint64
}

// Exists reports whether anything is stored at the path.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode converts the snapshot value into out.
func (s Snapshot) Decode(out any) error {
	return Decode(s.Value, out)
}

// Decode converts a generic tree value (as returned by Get or passed to a
// Transaction function) into a typed struct.
func Decode(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal tree value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode tree value: %w", err)
	}
	return nil
}

// Normalize turns typed values into the generic JSON tree form the store
// keeps (maps, slices, float64, string, bool, nil).
func Normalize(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool, float64:
		return value, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}
