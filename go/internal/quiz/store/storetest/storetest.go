// Package storetest holds the behaviour every store.Backend must share, so
// each backend's tests can run the same checks against it.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

// RunBackend runs the shared checks. newBackend is called once per subtest
// and the backend is closed when the subtest ends.
func RunBackend(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	open := func(t *testing.T) store.Backend {
		b := newBackend(t)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}
	key := func() string { return "games/" + uuid.NewString() }

	t.Run("compare and swap", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		k := key()

		data, rev, err := b.Load(ctx, k)
		require.NoError(t, err)
		assert.Nil(t, data)

		require.NoError(t, b.CompareAndSwap(ctx, k, []byte(`{"n":1}`), rev))
		data, rev2, err := b.Load(ctx, k)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(data))
		assert.NotEqual(t, rev, rev2)

		err = b.CompareAndSwap(ctx, k, []byte(`{"n":2}`), rev)
		assert.ErrorIs(t, err, store.ErrConflict)

		require.NoError(t, b.CompareAndSwap(ctx, k, []byte(`{"n":2}`), rev2))
		data, _, err = b.Load(ctx, k)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(data))
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		k := key()

		_, rev, err := b.Load(ctx, k)
		require.NoError(t, err)
		require.NoError(t, b.CompareAndSwap(ctx, k, []byte(`{}`), rev))
		_, rev, err = b.Load(ctx, k)
		require.NoError(t, err)

		require.NoError(t, b.CompareAndSwap(ctx, k, nil, rev))
		data, rev, err := b.Load(ctx, k)
		require.NoError(t, err)
		assert.Nil(t, data)

		require.NoError(t, b.CompareAndSwap(ctx, k, []byte(`{"again":true}`), rev))
	})

	t.Run("watch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		b := open(t)
		k := key()

		changes, err := b.Watch(ctx, k)
		require.NoError(t, err)

		_, rev, err := b.Load(ctx, k)
		require.NoError(t, err)
		require.NoError(t, b.CompareAndSwap(ctx, k, []byte(`{}`), rev))

		select {
		case <-changes:
		case <-time.After(5 * time.Second):
			t.Fatal("no change signalled")
		}

		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-changes:
				return !ok
			default:
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("concurrent transactions", func(t *testing.T) {
		ctx := context.Background()
		st := store.New(open(t), store.DefaultOptions())
		path := key() + "/count"

		const writers, each = 5, 3
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < each; j++ {
					_, err := st.Transaction(ctx, path, func(current any) (any, error) {
						n, _ := current.(float64)
						return n + 1, nil
					})
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		v, err := st.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, float64(writers*each), v)
	})
}
