package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mcdev12/quizsync/go/internal/quiz/questions"
	"github.com/mcdev12/quizsync/go/internal/quiz/store"
	"github.com/mcdev12/quizsync/go/internal/quiz/store/memory"
	"github.com/mcdev12/quizsync/go/internal/quiz/store/natskv"
	"github.com/mcdev12/quizsync/go/internal/quiz/store/redisstore"
)

// OpenStore connects the configured store backend.
func (c *Config) OpenStore(ctx context.Context, log zerolog.Logger) (*store.DocStore, error) {
	var backend store.Backend
	switch c.Store {
	case StoreMemory:
		backend = memory.New()
	case StoreNATS:
		b, err := natskv.Connect(ctx, natskv.Config{URL: c.NATSURL, Bucket: c.KVBucket, TTL: c.KVTTL})
		if err != nil {
			return nil, err
		}
		backend = b
	case StoreRedis:
		rdb, err := redisstore.NewRedisClient(ctx, c.RedisURL, log)
		if err != nil {
			return nil, err
		}
		backend = redisstore.NewOwned(rdb, c.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown QUIZ_STORE %q", c.Store)
	}

	opts := store.DefaultOptions()
	if c.StoreRetries > 0 {
		opts.MaxTries = uint(c.StoreRetries)
	}
	opts.Logger = log
	log.Info().Str("store", c.Store).Msg("session store ready")
	return store.New(backend, opts), nil
}

// OpenSupplier builds the configured question supplier. The returned func
// releases whatever it holds.
func (c *Config) OpenSupplier(ctx context.Context, log zerolog.Logger) (questions.Supplier, func(), error) {
	switch c.QuestionSource {
	case SourceBank:
		if c.QuestionBank == "" {
			return questions.DefaultBank(), func() {}, nil
		}
		bank, err := questions.LoadBank(c.QuestionBank)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", c.QuestionBank).Strs("categories", bank.Categories()).Msg("question bank loaded")
		return bank, func() {}, nil

	case SourcePostgres:
		pool, err := c.DB.NewPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("database", c.DB.Database).Msg("reading questions from Postgres")
		return questions.NewPostgresSupplier(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown QUIZ_QUESTION_SOURCE %q", c.QuestionSource)
	}
}
