package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	const workers = 20
	var inCritical, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "record-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			mu.Lock()
			inCritical++
			if inCritical > max {
				max = inCritical
			}
			mu.Unlock()

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max)
	assert.Zero(t, inCritical)
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "record-a")
	require.NoError(t, err)
	defer releaseA()

	// A lock on one key must not block a different key.
	done := make(chan struct{})
	go func() {
		releaseB, err := locker.Acquire(ctx, "record-b")
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()
	<-done
}

func TestMemoryLockerReacquireAfterRelease(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "record-1")
	require.NoError(t, err)
	release()

	release, err = locker.Acquire(ctx, "record-1")
	require.NoError(t, err)
	release()
}
