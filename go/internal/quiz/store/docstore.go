package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
)

// Backend is the per-document primitive a concrete store provides. Documents
// are opaque JSON blobs versioned by a revision the backend assigns.
type Backend interface {
	// Load returns the document and its revision. A missing document has
	// nil data; its revision is whatever CompareAndSwap must be given to
	// create it.
	Load(ctx context.Context, key string) (data []byte, revision uint64, err error)
	// CompareAndSwap writes data (nil deletes) only if the document is still
	// at revision, and returns ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, key string, data []byte, revision uint64) error
	// Watch signals on the returned channel after the document changes.
	// Signals may be coalesced. The channel closes when ctx is done.
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
	Close() error
}

// Options tunes the conflict retry loop.
type Options struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          zerolog.Logger
}

// DefaultOptions returns the retry settings used by the binaries.
func DefaultOptions() Options {
	return Options{
		MaxTries:        20,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
		Logger:          zerolog.Nop(),
	}
}

// DocStore implements Store on top of a Backend.
type DocStore struct {
	backend Backend
	opts    Options
	log     zerolog.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

var _ Store = (*DocStore)(nil)

// New wraps a backend.
func New(backend Backend, opts Options) *DocStore {
	if opts.MaxTries == 0 {
		opts.MaxTries = DefaultOptions().MaxTries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultOptions().InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultOptions().MaxInterval
	}
	return &DocStore{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "store").Logger(),
		subs:    make(map[string]*subscription),
	}
}

// NewKey returns a base58 encoded UUIDv7, so keys sort by creation time and
// stay short enough to read out as a game code.
func (s *DocStore) NewKey(ctx context.Context, parent string) (string, error) {
	if len(splitSegments(parent)) != 1 {
		return "", fmt.Errorf("%w: parent %q must be a single segment", ErrInvalidPath, parent)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base58.Encode(id[:]), nil
}

func (s *DocStore) Set(ctx context.Context, path string, value any) error {
	_, err := s.mutate(ctx, path, func(any) (any, error) {
		return value, nil
	})
	return err
}

func (s *DocStore) Update(ctx context.Context, path string, fields map[string]any) error {
	normalized := make(map[string]any, len(fields))
	for p, v := range fields {
		nv, err := Normalize(v)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", path, p, err)
		}
		normalized[p] = nv
	}
	order := sortedFieldPaths(normalized)

	_, err := s.mutate(ctx, path, func(current any) (any, error) {
		next := current
		for _, p := range order {
			var err error
			next, err = SetIn(next, p, cloneValue(normalized[p]))
			if err != nil {
				return nil, err
			}
		}
		return next, nil
	})
	return err
}

func (s *DocStore) Transaction(ctx context.Context, path string, fn func(current any) (any, error)) (any, error) {
	return s.mutate(ctx, path, fn)
}

func (s *DocStore) Get(ctx context.Context, path string) (any, error) {
	docKey, rel, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	doc, _, err := s.load(ctx, docKey)
	if err != nil {
		return nil, err
	}
	return getIn(doc, rel), nil
}

// mutate runs one read-modify-CAS cycle per attempt and retries on conflict.
func (s *DocStore) mutate(ctx context.Context, path string, fn func(current any) (any, error)) (any, error) {
	docKey, rel, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	attempt := 0
	op := func() (any, error) {
		attempt++
		doc, rev, err := s.load(ctx, docKey)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		next, err := fn(getIn(doc, rel))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		next, err = Normalize(next)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		newDoc, err := setIn(doc, rel, next)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if doc == nil && newDoc == nil {
			return next, nil
		}

		var data []byte
		if newDoc != nil {
			if data, err = json.Marshal(newDoc); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("encode document %s: %w", docKey, err))
			}
		}
		if err := s.backend.CompareAndSwap(ctx, docKey, data, rev); err != nil {
			if errors.Is(err, ErrConflict) {
				s.log.Debug().Str("doc", docKey).Int("attempt", attempt).Msg("revision conflict, retrying")
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return next, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.InitialInterval
	bo.MaxInterval = s.opts.MaxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.opts.MaxTries),
	)
}

func (s *DocStore) load(ctx context.Context, docKey string) (any, uint64, error) {
	data, rev, err := s.backend.Load(ctx, docKey)
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: %w", docKey, err)
	}
	if data == nil {
		return nil, rev, nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode document %s: %w", docKey, err)
	}
	return doc, rev, nil
}

type subscription struct {
	id     string
	path   string
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) ID() string            { return s.id }
func (s *subscription) Path() string          { return s.path }
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *DocStore) Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (Subscription, error) {
	docKey, rel, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	// Watch before the first load so no write can fall between them.
	changes, err := s.backend.Watch(subCtx, docKey)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", docKey, err)
	}

	sub := &subscription{
		id:     uuid.NewString(),
		path:   path,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go s.deliver(subCtx, sub, docKey, rel, changes, onChange)

	s.log.Debug().Str("subscription_id", sub.id).Str("path", path).Msg("subscribed")
	return sub, nil
}

func (s *DocStore) deliver(ctx context.Context, sub *subscription, docKey string, rel []string, changes <-chan struct{}, onChange func(Snapshot)) {
	defer func() {
		s.mu.Lock()
		delete(s.subs, sub.id)
		s.mu.Unlock()
		close(sub.done)
	}()

	var last []byte
	delivered := false
	push := func() {
		doc, rev, err := s.load(ctx, docKey)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Str("path", sub.path).Msg("failed to read changed document")
			}
			return
		}
		value := getIn(doc, rel)
		encoded, err := json.Marshal(value)
		if err != nil {
			return
		}
		// A write elsewhere in the document leaves this path unchanged.
		if delivered && bytes.Equal(encoded, last) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		last, delivered = encoded, true
		onChange(Snapshot{Path: sub.path, Value: value, Revision: rev})
	}

	push()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			push()
		}
	}
}

func (s *DocStore) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	s.mu.Lock()
	own, ok := s.subs[sub.ID()]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	own.cancel()
	s.log.Debug().Str("subscription_id", own.id).Str("path", own.path).Msg("unsubscribed")
	return nil
}

// Close cancels every subscription and closes the backend.
func (s *DocStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return s.backend.Close()
}

func (s *DocStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// cloneValue copies maps and slices so one Update value is never shared by
// two retry attempts.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = cloneValue(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = cloneValue(c)
		}
		return out
	default:
		return v
	}
}
