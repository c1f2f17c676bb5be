// Package natskv keeps each session document as one entry in a NATS
// JetStream key-value bucket. Entry revisions give the compare-and-swap the
// document engine needs, and key watchers give change notification.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

type Config struct {
	URL    string
	Bucket string
	// TTL expires abandoned sessions. Zero keeps them forever.
	TTL time.Duration
}

type Backend struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

var _ store.Backend = (*Backend)(nil)

// Connect dials NATS and creates the bucket if needed.
func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "quiz session documents",
		History:     1,
		TTL:         cfg.TTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create key-value bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Str("url", nc.ConnectedUrl()).Msg("connected to NATS key-value store")
	return &Backend{kv: kv, nc: nc}, nil
}

// New wraps an existing bucket. Close leaves the connection open.
func New(kv jetstream.KeyValue) *Backend {
	return &Backend{kv: kv}
}

// kvKey maps "games/<id>" onto a subject-style key.
func kvKey(docKey string) string {
	return strings.ReplaceAll(docKey, "/", ".")
}

func (b *Backend) Load(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := b.kv.Get(ctx, kvKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

func (b *Backend) CompareAndSwap(ctx context.Context, key string, data []byte, revision uint64) error {
	k := kvKey(key)
	var err error
	switch {
	case data == nil && revision == 0:
		return nil
	case data == nil:
		err = b.kv.Delete(ctx, k, jetstream.LastRevision(revision))
	case revision == 0:
		_, err = b.kv.Create(ctx, k, data)
	default:
		_, err = b.kv.Update(ctx, k, data, revision)
	}
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}

func (b *Backend) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	watcher, err := b.kv.Watch(ctx, kvKey(key), jetstream.UpdatesOnly())
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Stop(); err != nil {
				log.Debug().Err(err).Str("key", key).Msg("failed to stop key watcher")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (b *Backend) Close() error {
	if b.nc != nil {
		if err := b.nc.Drain(); err != nil {
			b.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}
