package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// runStoreSuite 每個後端都要通過的行為
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Set(ctx, "things", "a", []byte(`{"v":1}`)))

			value, err := s.Get(ctx, "things", "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(value))
		})

		t.Run("Failed - not found", func(t *testing.T) {
			s := newStore(t)
			_, err := s.Get(ctx, "things", "missing")
			assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
		})
	})

	t.Run("Create", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Create(ctx, "things", "a", []byte(`{"v":1}`)))
		})

		t.Run("Failed - already exists keeps original", func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Create(ctx, "things", "a", []byte(`{"v":1}`)))

			err := s.Create(ctx, "things", "a", []byte(`{"v":2}`))
			assert.ErrorIs(t, err, apperrors.ErrDocumentExists)

			value, err := s.Get(ctx, "things", "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(value))
		})

		t.Run("Concurrent - exactly one wins", func(t *testing.T) {
			s := newStore(t)
			const workers = 20

			var wg sync.WaitGroup
			created := atomic.NewInt32(0)
			exists := atomic.NewInt32(0)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.Create(ctx, "things", "same", []byte(strconv.Itoa(i)))
					switch {
					case err == nil:
						created.Inc()
					case errors.Is(err, apperrors.ErrDocumentExists):
						exists.Inc()
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, int32(1), created.Load())
			assert.Equal(t, int32(workers-1), exists.Load())
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("Success - creates when absent", func(t *testing.T) {
			s := newStore(t)
			err := s.Update(ctx, "counters", "c", func(current []byte) ([]byte, error) {
				assert.Nil(t, current)
				return []byte("1"), nil
			})
			require.NoError(t, err)

			value, err := s.Get(ctx, "counters", "c")
			require.NoError(t, err)
			assert.Equal(t, "1", string(value))
		})

		t.Run("Success - nil result skips write", func(t *testing.T) {
			s := newStore(t)
			err := s.Update(ctx, "counters", "c", func(current []byte) ([]byte, error) {
				return nil, nil
			})
			require.NoError(t, err)

			_, err = s.Get(ctx, "counters", "c")
			assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
		})

		t.Run("Failed - fn error returned without write", func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Set(ctx, "counters", "c", []byte("0")))

			calls := 0
			err := s.Update(ctx, "counters", "c", func(current []byte) ([]byte, error) {
				calls++
				return nil, apperrors.ErrOutOfStock
			})
			assert.ErrorIs(t, err, apperrors.ErrOutOfStock)
			assert.Equal(t, 1, calls)

			value, err := s.Get(ctx, "counters", "c")
			require.NoError(t, err)
			assert.Equal(t, "0", string(value))
		})

		t.Run("Concurrent - no lost updates", func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Set(ctx, "counters", "c", []byte("0")))
			const workers = 20

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, "counters", "c", func(current []byte) ([]byte, error) {
						n, err := strconv.Atoi(string(current))
						if err != nil {
							return nil, err
						}
						return []byte(strconv.Itoa(n + 1)), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			value, err := s.Get(ctx, "counters", "c")
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(workers), string(value))
		})
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "things", "a", []byte(`{"v":1}`)))
		require.NoError(t, s.Set(ctx, "things", "b", []byte(`{"v":2}`)))
		require.NoError(t, s.Set(ctx, "others", "c", []byte(`{"v":3}`)))

		values, err := s.List(ctx, "things")
		require.NoError(t, err)
		assert.Len(t, values, 2)

		empty, err := s.List(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		MaxElapsed:      time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}
