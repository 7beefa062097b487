// Package poll keeps read-only REST resources fresh by re-fetching them on a
// fixed interval. Each Refresher owns its own ticker; there is no shared
// scheduler.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"deskwatch/internal/common"
)

// FetchFunc loads the current value of a resource.
type FetchFunc func(ctx context.Context) (any, error)

// Getter is satisfied by api.Client.
type Getter interface {
	GetJSON(ctx context.Context, path string) (any, error)
}

// GetJSON returns a FetchFunc that reads path through g.
func GetJSON(g Getter, path string) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return g.GetJSON(ctx, path)
	}
}

// MetricsInterface defines the metrics a refresher reports.
type MetricsInterface interface {
	PollFetchObserve(resource string, d time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) PollFetchObserve(string, time.Duration, error) {}

// Update is handed to OnUpdate after every successful fetch.
type Update struct {
	Resource  string
	Value     any
	FetchedAt time.Time
}

type Options struct {
	Clock    common.Clock
	Metrics  MetricsInterface
	OnUpdate func(Update)
	// Initial seeds Last, e.g. from the local journal, until the first fetch
	// succeeds.
	Initial *Update
}

// Refresher polls one resource.
type Refresher struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	clock    common.Clock
	metrics  MetricsInterface
	onUpdate func(Update)

	mu      sync.Mutex
	gen     uint64 // bumped on Start and Stop; results from older generations are dropped
	running bool
	ticker  clock.Ticker
	cancel  context.CancelFunc
	value   any
	at      time.Time
	lastErr error
	fetches int
}

// New creates a stopped refresher. A non-positive interval uses one minute.
func New(name string, interval time.Duration, fetch FetchFunc, opts Options) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	r := &Refresher{
		name:     name,
		interval: interval,
		fetch:    fetch,
		clock:    common.OrRealClock(opts.Clock),
		metrics:  opts.Metrics,
		onUpdate: opts.OnUpdate,
	}
	if opts.Initial != nil {
		r.value = opts.Initial.Value
		r.at = opts.Initial.FetchedAt
	}
	return r
}

func (r *Refresher) Name() string            { return r.name }
func (r *Refresher) Interval() time.Duration { return r.interval }

// Start fetches once immediately and then every interval until Stop or ctx
// is done. Starting a running refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.gen++
	gen := r.gen

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.ticker = r.clock.NewTicker(r.interval)

	log.Debug().Str("resource", r.name).Dur("interval", r.interval).Msg("Polling started")

	go r.fetchOnce(ctx, gen)
	go r.loop(ctx, gen, r.ticker)
}

func (r *Refresher) loop(ctx context.Context, gen uint64, ticker clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			r.expire(gen)
			return
		case <-ticker.C():
			if !r.current(gen) {
				return
			}
			// Fetches never block the tick; a slow one overlaps the next.
			go r.fetchOnce(ctx, gen)
		}
	}
}

// expire releases a generation whose parent context ended without Stop, so
// a later Start runs again.
func (r *Refresher) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || !r.running {
		return
	}
	r.running = false
	r.gen++
	r.ticker.Stop()
	r.ticker = nil
	r.cancel()
	r.cancel = nil

	log.Debug().Str("resource", r.name).Msg("Polling context done")
}

func (r *Refresher) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen == r.gen
}

func (r *Refresher) fetchOnce(ctx context.Context, gen uint64) {
	if !r.current(gen) {
		return
	}

	start := r.clock.Now()
	value, err := r.fetch(ctx)
	r.metrics.PollFetchObserve(r.name, r.clock.Now().Sub(start), err)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		log.Debug().Str("resource", r.name).Msg("Discarding poll result after stop")
		return
	}
	r.fetches++
	if err != nil {
		r.lastErr = err
		r.mu.Unlock()
		log.Warn().Err(err).Str("resource", r.name).Msg("Poll fetch failed, keeping last value")
		return
	}
	r.value = value
	r.at = r.clock.Now()
	r.lastErr = nil
	update := Update{Resource: r.name, Value: value, FetchedAt: r.at}
	onUpdate := r.onUpdate
	r.mu.Unlock()

	if onUpdate != nil {
		onUpdate(update)
	}
}

// Stop halts the ticker. In-flight fetches complete but their results are
// dropped. Safe to call repeatedly.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	r.gen++
	r.ticker.Stop()
	r.ticker = nil
	r.cancel()
	r.cancel = nil

	log.Debug().Str("resource", r.name).Msg("Polling stopped")
}

// Last returns the last good value, when it was fetched, and the error of the
// most recent fetch if that one failed.
func (r *Refresher) Last() (any, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.at, r.lastErr
}

// Running reports whether the refresher is between Start and Stop.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Fetches returns the number of completed fetches that were not discarded.
func (r *Refresher) Fetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}
