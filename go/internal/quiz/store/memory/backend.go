// Package memory is an in-process store backend. Every client sharing one
// Backend sees the same tree, which is what the tests and the single
// binary dev mode rely on.
package memory

import (
	"context"
	"sync"

	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

type document struct {
	data     []byte
	revision uint64
}

type Backend struct {
	mu       sync.Mutex
	docs     map[string]document
	seq      uint64
	watchers map[string]map[chan struct{}]struct{}
	closed   bool
}

var _ store.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		docs:     make(map[string]document),
		watchers: make(map[string]map[chan struct{}]struct{}),
	}
}

// NewStore is shorthand for a DocStore over a fresh memory backend.
func NewStore() *store.DocStore {
	return store.New(New(), store.DefaultOptions())
}

func (b *Backend) Load(_ context.Context, key string) ([]byte, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, 0, store.ErrClosed
	}
	doc := b.docs[key]
	if doc.data == nil {
		return nil, doc.revision, nil
	}
	out := make([]byte, len(doc.data))
	copy(out, doc.data)
	return out, doc.revision, nil
}

func (b *Backend) CompareAndSwap(_ context.Context, key string, data []byte, revision uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return store.ErrClosed
	}
	if b.docs[key].revision != revision {
		return store.ErrConflict
	}

	b.seq++
	var stored []byte
	if data != nil {
		stored = make([]byte, len(data))
		copy(stored, data)
	}
	// Deleted documents keep their revision so a stale writer still conflicts.
	b.docs[key] = document{data: stored, revision: b.seq}

	for ch := range b.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *Backend) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, store.ErrClosed
	}

	ch := make(chan struct{}, 1)
	if b.watchers[key] == nil {
		b.watchers[key] = make(map[chan struct{}]struct{})
	}
	b.watchers[key][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.watchers[key][ch]; ok {
			delete(b.watchers[key], ch)
			if len(b.watchers[key]) == 0 {
				delete(b.watchers, key)
			}
			close(ch)
		}
	}()
	return ch, nil
}

// Close stops every watcher and rejects further calls.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for key, set := range b.watchers {
		for ch := range set {
			close(ch)
		}
		delete(b.watchers, key)
	}
	return nil
}
