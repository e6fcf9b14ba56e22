package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestRefreshCachesSnapshot(t *testing.T) {
	c := New(Options{
		Name:   "test",
		Domain: "test",
		Logger: testLogger(),
		Update: func(ctx context.Context) (interface{}, error) {
			return map[string]int{"value": 42}, nil
		},
	})

	require.NoError(t, c.Refresh(context.Background()))
	assert.True(t, c.LastUpdateSuccess())
	assert.Nil(t, c.LastError())

	data, ok := c.Data().(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 42, data["value"])
}

func TestConcurrentRefreshesShareOneFetch(t *testing.T) {
	var fetches int64
	release := make(chan struct{})

	c := New(Options{
		Name:   "dedup",
		Domain: "test",
		Logger: testLogger(),
		Update: func(ctx context.Context) (interface{}, error) {
			atomic.AddInt64(&fetches, 1)
			<-release
			return "snapshot", nil
		},
	})

	var wg sync.WaitGroup
	started := make(chan struct{})
	go func() {
		close(started)
		_ = c.Refresh(context.Background())
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first refresh enter the fetch

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Refresh(context.Background()))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&fetches))
	assert.Equal(t, "snapshot", c.Data())
}

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"plain vendor error becomes update failed", errors.New("boom"), ErrUpdateFailed},
		{"wrapped auth error passes through", fmt.Errorf("%w: key rejected", ErrAuthFailed), ErrAuthFailed},
		{"wrapped not ready passes through", fmt.Errorf("%w: hub offline", ErrNotReady), ErrNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{
				Name:   "classify",
				Domain: "test",
				Logger: testLogger(),
				Update: func(ctx context.Context) (interface{}, error) {
					return nil, tt.err
				},
			})

			err := c.Refresh(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected))
			assert.False(t, c.LastUpdateSuccess())
		})
	}
}

func TestAuthFailureInvokesCallback(t *testing.T) {
	var authErrs int64
	c := New(Options{
		Name:   "auth",
		Domain: "test",
		Logger: testLogger(),
		Update: func(ctx context.Context) (interface{}, error) {
			return nil, fmt.Errorf("%w: expired token", ErrAuthFailed)
		},
		OnAuthFailed: func(err error) {
			atomic.AddInt64(&authErrs, 1)
		},
	})

	_ = c.Refresh(context.Background())
	assert.Equal(t, int64(1), atomic.LoadInt64(&authErrs))
}

func TestListenersNotifiedOnSuccessAndFailure(t *testing.T) {
	var calls int64
	fail := false

	c := New(Options{
		Name:   "listeners",
		Domain: "test",
		Logger: testLogger(),
		Update: func(ctx context.Context) (interface{}, error) {
			if fail {
				return nil, errors.New("down")
			}
			return "ok", nil
		},
	})

	remove := c.AddListener(func() { atomic.AddInt64(&calls, 1) })

	require.NoError(t, c.Refresh(context.Background()))
	fail = true
	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))

	remove()
	fail = false
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "removed listener must not fire")
}

func TestSetUpdatedDataMarksHealthy(t *testing.T) {
	c := New(Options{
		Name:   "push",
		Domain: "test",
		Logger: testLogger(),
		Update: func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("unreachable")
		},
	})

	require.Error(t, c.Refresh(context.Background()))
	assert.False(t, c.LastUpdateSuccess())

	var notified int64
	c.AddListener(func() { atomic.AddInt64(&notified, 1) })

	c.SetUpdatedData("pushed frame")
	assert.True(t, c.LastUpdateSuccess())
	assert.Equal(t, "pushed frame", c.Data())
	assert.Equal(t, int64(1), atomic.LoadInt64(&notified))
}

func TestStartPollsOnInterval(t *testing.T) {
	var fetches int64
	c := New(Options{
		Name:     "poll",
		Domain:   "test",
		Interval: 15 * time.Millisecond,
		Logger:   testLogger(),
		Update: func(ctx context.Context) (interface{}, error) {
			atomic.AddInt64(&fetches, 1)
			return "tick", nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Shutdown()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&fetches) >= 2
	}, time.Second, 10*time.Millisecond)
}
