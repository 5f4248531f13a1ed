package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistry(t *testing.T) {
	t.Run("Serializes Per Bot", func(t *testing.T) {
		r := NewLockRegistry()

		release, err := r.Acquire(context.Background(), 1)
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			rel2, err := r.Acquire(context.Background(), 1)
			assert.NoError(t, err)
			close(acquired)
			rel2()
		}()

		select {
		case <-acquired:
			t.Fatal("second acquire succeeded while lock held")
		case <-time.After(50 * time.Millisecond):
		}

		release()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second acquire never completed after release")
		}
	})

	t.Run("Different Bots Do Not Contend", func(t *testing.T) {
		r := NewLockRegistry()

		rel1, err := r.Acquire(context.Background(), 1)
		require.NoError(t, err)
		defer rel1()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rel2, err := r.Acquire(ctx, 2)
		require.NoError(t, err)
		rel2()
	})

	t.Run("Acquire Respects Context", func(t *testing.T) {
		r := NewLockRegistry()

		release, err := r.Acquire(context.Background(), 1)
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = r.Acquire(ctx, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Idle Entries Are Removed", func(t *testing.T) {
		r := NewLockRegistry()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := r.Acquire(context.Background(), 7)
				assert.NoError(t, err)
				release()
			}()
		}
		wg.Wait()

		r.mu.Lock()
		defer r.mu.Unlock()
		assert.Empty(t, r.locks)
	})
}
