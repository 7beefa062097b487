package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	testingclock "k8s.io/utils/clock/testing"
)

const (
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
	interval = 10 * time.Second
)

func newFakeClock() *testingclock.FakeClock {
	return testingclock.NewFakeClock(time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC))
}

// tickerClock counts Ticker.Stop calls; the fake clock's tickers keep their
// waiter registered after Stop.
type tickerClock struct {
	*testingclock.FakeClock
	stops atomic.Int32
}

type countedTicker struct {
	clock.Ticker
	stops *atomic.Int32
}

func (t countedTicker) Stop() {
	t.stops.Add(1)
	t.Ticker.Stop()
}

func (c *tickerClock) NewTicker(d time.Duration) clock.Ticker {
	return countedTicker{Ticker: c.FakeClock.NewTicker(d), stops: &c.stops}
}

type recordingMetrics struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (m *recordingMetrics) PollFetchObserve(resource string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
	} else {
		m.ok++
	}
}

func (m *recordingMetrics) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ok, m.failed
}

func TestRefresher_ImmediateThenEveryInterval(t *testing.T) {
	fc := newFakeClock()
	var calls atomic.Int32
	r := New("market_clock", interval, func(ctx context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}, Options{Clock: fc})

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Fetches() == 1 }, waitFor, tick)

	fc.Step(interval - time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	fc.Step(time.Millisecond)
	require.Eventually(t, func() bool { return r.Fetches() == 2 }, waitFor, tick)

	fc.Step(interval)
	require.Eventually(t, func() bool { return r.Fetches() == 3 }, waitFor, tick)

	v, at, err := r.Last()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, fc.Now(), at)
}

func TestRefresher_FailureKeepsLastValue(t *testing.T) {
	fc := newFakeClock()
	metrics := &recordingMetrics{}
	results := []error{nil, errors.New("HTTP 503"), nil}
	var calls atomic.Int32
	r := New("spx_fleet", interval, func(ctx context.Context) (any, error) {
		n := int(calls.Add(1))
		if err := results[n-1]; err != nil {
			return nil, err
		}
		return n, nil
	}, Options{Clock: fc, Metrics: metrics})

	r.Start(context.Background())
	defer r.Stop()
	require.Eventually(t, func() bool { return r.Fetches() == 1 }, waitFor, tick)

	fc.Step(interval)
	require.Eventually(t, func() bool { return r.Fetches() == 2 }, waitFor, tick)

	v, _, err := r.Last()
	assert.Error(t, err)
	assert.Equal(t, 1, v, "a failed fetch must not clear the prior value")
	assert.True(t, r.Running(), "failures never stop polling")

	fc.Step(interval)
	require.Eventually(t, func() bool { return r.Fetches() == 3 }, waitFor, tick)
	v, _, err = r.Last()
	assert.NoError(t, err)
	assert.Equal(t, 3, v)

	ok, failed := metrics.counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
}

func TestRefresher_StopIsDeterministicAndIdempotent(t *testing.T) {
	fc := &tickerClock{FakeClock: newFakeClock()}
	var calls atomic.Int32
	r := New("themes", interval, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "ok", nil
	}, Options{Clock: fc})

	r.Start(context.Background())
	require.Eventually(t, func() bool { return r.Fetches() == 1 }, waitFor, tick)

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
	assert.Equal(t, int32(1), fc.stops.Load(), "ticker must be stopped exactly once")

	fc.Step(5 * interval)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresher_SlowFetchDoesNotDelayNextTick(t *testing.T) {
	fc := newFakeClock()
	release := make(chan struct{})
	var calls atomic.Int32
	r := New("golive_status", interval, func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			<-release
			return "slow", nil
		}
		return "fast", nil
	}, Options{Clock: fc})

	r.Start(context.Background())
	defer r.Stop()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

	fc.Step(interval)
	require.Eventually(t, func() bool { return r.Fetches() == 1 }, waitFor, tick)
	v, _, _ := r.Last()
	assert.Equal(t, "fast", v)

	close(release)
	require.Eventually(t, func() bool { return r.Fetches() == 2 }, waitFor, tick)
}

func TestRefresher_LateResultDiscardedAfterStop(t *testing.T) {
	fc := newFakeClock()
	release := make(chan struct{})
	started := make(chan struct{})
	var updates atomic.Int32
	r := New("ppo_status", interval, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "late", nil
	}, Options{Clock: fc, OnUpdate: func(Update) { updates.Add(1) }})

	r.Start(context.Background())
	<-started
	r.Stop()
	close(release)
	time.Sleep(30 * time.Millisecond)

	v, at, err := r.Last()
	assert.Nil(t, v)
	assert.True(t, at.IsZero())
	assert.NoError(t, err)
	assert.Equal(t, int32(0), updates.Load())
	assert.Equal(t, 0, r.Fetches())
}

func TestRefresher_RestartAfterStop(t *testing.T) {
	fc := newFakeClock()
	var calls atomic.Int32
	r := New("equity_status", interval, func(ctx context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}, Options{Clock: fc})

	r.Start(context.Background())
	r.Start(context.Background())
	require.Eventually(t, func() bool { return r.Fetches() == 1 }, waitFor, tick)
	r.Stop()

	r.Start(context.Background())
	defer r.Stop()
	require.Eventually(t, func() bool { return r.Fetches() == 2 }, waitFor, tick)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRefresher_ContextCancelStopsTicking(t *testing.T) {
	fc := newFakeClock()
	var calls atomic.Int32
	r := New("value_watchlist", interval, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, nil
	}, Options{Clock: fc})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer r.Stop()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

	cancel()
	require.Eventually(t, func() bool { return !r.Running() }, waitFor, tick)
	fc.Step(interval)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// A fresh Start after the parent context ended polls again.
	r.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, tick)
	assert.True(t, r.Running())
}

func TestRefresher_InitialValueUntilFirstFetch(t *testing.T) {
	fc := newFakeClock()
	seededAt := fc.Now().Add(-time.Hour)
	release := make(chan struct{})
	r := New("market_clock", interval, func(ctx context.Context) (any, error) {
		<-release
		return "live", nil
	}, Options{Clock: fc, Initial: &Update{Resource: "market_clock", Value: "cached", FetchedAt: seededAt}})

	v, at, err := r.Last()
	require.NoError(t, err)
	assert.Equal(t, "cached", v)
	assert.Equal(t, seededAt, at)

	r.Start(context.Background())
	defer r.Stop()
	v, _, _ = r.Last()
	assert.Equal(t, "cached", v)

	close(release)
	require.Eventually(t, func() bool { return r.Fetches() == 1 }, waitFor, tick)
	v, at, _ = r.Last()
	assert.Equal(t, "live", v)
	assert.Equal(t, fc.Now(), at)
}

func TestRefresher_IndependentFailures(t *testing.T) {
	fc := newFakeClock()
	failing := New("crypto_status", interval, func(ctx context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}, Options{Clock: fc})
	healthy := New("market_clock", interval, func(ctx context.Context) (any, error) {
		return map[string]any{"is_open": true}, nil
	}, Options{Clock: fc})

	failing.Start(context.Background())
	healthy.Start(context.Background())
	defer failing.Stop()
	defer healthy.Stop()

	require.Eventually(t, func() bool { return failing.Fetches() == 1 && healthy.Fetches() == 1 }, waitFor, tick)

	v, _, err := healthy.Last()
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"is_open": true}, v)

	_, _, err = failing.Last()
	assert.Error(t, err)
}

type stubGetter struct{ path string }

func (g *stubGetter) GetJSON(ctx context.Context, path string) (any, error) {
	g.path = path
	return []any{"a"}, nil
}

func TestGetJSON(t *testing.T) {
	g := &stubGetter{}
	v, err := GetJSON(g, "/api/themes/all")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/themes/all", g.path)
	assert.Equal(t, []any{"a"}, v)
}
