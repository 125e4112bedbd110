package conc

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/switchboard-go/pkg/util/merr"
)

func TestPoolSubmit(t *testing.T) {
	pool := NewPool[int](4)
	defer pool.Release()

	futures := make([]*Future[int], 0, 8)
	for i := 0; i < 8; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (int, error) {
			return i * 2, nil
		}))
	}
	require.NoError(t, AwaitAll(futures...))
	for i, future := range futures {
		v, err := future.Await()
		assert.NoError(t, err)
		assert.Equal(t, i*2, v)
		assert.True(t, future.Done())
	}
	assert.Equal(t, 4, pool.Cap())
}

func TestPoolSubmitError(t *testing.T) {
	pool := NewPool[struct{}](1)
	defer pool.Release()

	errBoom := errors.New("boom")
	future := pool.Submit(func() (struct{}, error) {
		return struct{}{}, errBoom
	})
	assert.ErrorIs(t, future.Err(), errBoom)
	assert.ErrorIs(t, AwaitAll(future), errBoom)
}

func TestPoolNonBlockingOverload(t *testing.T) {
	pool := NewPool[struct{}](1, WithNonBlocking(true), WithPreAlloc(true))
	defer pool.Release()

	release := make(chan struct{})
	started := make(chan struct{})
	busy := pool.Submit(func() (struct{}, error) {
		close(started)
		<-release
		return struct{}{}, nil
	})
	<-started

	rejected := pool.Submit(func() (struct{}, error) {
		return struct{}{}, nil
	})
	assert.ErrorIs(t, rejected.Err(), merr.ErrServiceTooManyRequests)

	close(release)
	assert.NoError(t, busy.Err())
}

func TestPoolConcealPanic(t *testing.T) {
	var (
		mu     sync.Mutex
		panics []any
	)
	pool := NewPool[int](1, WithConcealPanic(true), WithPanicHandler(func(v any) {
		mu.Lock()
		defer mu.Unlock()
		panics = append(panics, v)
	}))
	defer pool.Release()

	future := pool.Submit(func() (int, error) {
		panic("bad handler")
	})
	assert.ErrorContains(t, future.Err(), "bad handler")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(panics) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGo(t *testing.T) {
	future := Go(func() (string, error) {
		return "done", nil
	})
	<-future.Inner()
	v, err := future.Await()
	assert.NoError(t, err)
	assert.Equal(t, "done", v)
}
