// Package livequery keeps a query result fresh by re-running the query on
// every change notification for its table.
//
// Refresh is coarse: any insert, update or delete re-runs the whole query,
// once per event. A failed re-fetch leaves the subscription open and the next
// event retries. When the change feed cannot be opened the query still
// loads, and subscribing is retried in the background.
package livequery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

// State of a Query.
type State int

const (
	// Idle: no subscription.
	Idle State = iota
	// Subscribed: listening, last fetch succeeded.
	Subscribed
	// Error: last fetch failed, or the change feed is not open yet.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribed:
		return "subscribed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var ErrAlreadyStarted = errors.New("live query already started")

var newRetryBackOff = func() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	return bo
}

// Fetcher runs the query.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Query is a live query over one table. Start and Stop may be called from
// any goroutine, but Stop must not be called from inside onResult.
type Query[T any] struct {
	changes platform.Changes
	table   string
	fetch   Fetcher[T]
	logger  logging.Logger

	mu       sync.Mutex
	state    State
	detached bool
	last     []T
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns an idle query over table that runs fetch.
func New[T any](changes platform.Changes, table string, fetch Fetcher[T], logger logging.Logger) *Query[T] {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Query[T]{changes: changes, table: table, fetch: fetch, logger: logger}
}

// Start subscribes to the table, runs the initial fetch and delivers it to
// onResult before returning. Afterwards onResult runs on a single dispatch
// goroutine, once per change event, in event order.
//
// The subscription lives until Stop is called or ctx ends. A failed initial
// fetch still leaves the query listening, in the Error state. A failed
// subscribe does not fail Start: the query stays in the Error state, keeps
// retrying, and re-fetches once the feed is open.
func (q *Query[T]) Start(ctx context.Context, onResult func([]T, error)) error {
	q.mu.Lock()
	if q.done != nil {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.cancel, q.done = cancel, done
	q.mu.Unlock()

	// subscribing first means a change racing the initial fetch still
	// triggers a re-fetch
	sub, subErr := q.changes.Subscribe(runCtx, q.table)
	if subErr != nil {
		q.logger.Warn(runCtx, "live query subscribe failed", "table", q.table, "error", subErr)
	}
	q.setDetached(subErr != nil)

	items, err := q.fetch(runCtx)
	q.record(items, err)
	if err != nil {
		q.logger.Warn(runCtx, "live query initial fetch failed", "table", q.table, "error", err)
	}
	onResult(items, err)

	go q.dispatch(runCtx, sub, onResult, done)
	return nil
}

// Stop releases the subscription and waits for the dispatch goroutine. No
// callback runs after Stop returns. Calling it again, or on a query that was
// never started, does nothing.
func (q *Query[T]) Stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State returns the current state.
func (q *Query[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Last returns the most recent fetch outcome. Items are those of the last
// successful fetch.
func (q *Query[T]) Last() ([]T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last, q.lastErr
}

// Live reports whether the change feed is open.
func (q *Query[T]) Live() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state != Idle && !q.detached
}

func (q *Query[T]) record(items []T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastErr = err
	if err == nil {
		q.last = items
	}
	q.updateState()
}

func (q *Query[T]) setDetached(v bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.detached = v
	if q.state != Idle {
		q.updateState()
	}
}

// updateState derives the state of a started query. Callers hold q.mu.
func (q *Query[T]) updateState() {
	if q.lastErr != nil || q.detached {
		q.state = Error
		return
	}
	q.state = Subscribed
}

// resubscribe retries Subscribe until it succeeds or ctx ends.
func (q *Query[T]) resubscribe(ctx context.Context) (platform.Subscription, bool) {
	bo := newRetryBackOff()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(bo.NextBackOff()):
		}
		sub, err := q.changes.Subscribe(ctx, q.table)
		if err == nil {
			q.logger.Info(ctx, "live query subscribed", "table", q.table)
			return sub, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		q.logger.Warn(ctx, "live query subscribe failed", "table", q.table, "error", err)
	}
}

func (q *Query[T]) dispatch(ctx context.Context, sub platform.Subscription, onResult func([]T, error), done chan struct{}) {
	defer func() {
		if sub != nil {
			if err := sub.Close(); err != nil {
				q.logger.Warn(context.Background(), "live query unsubscribe failed", "table", q.table, "error", err)
			}
		}
		q.mu.Lock()
		q.state = Idle
		q.detached = false
		q.cancel, q.done = nil, nil
		q.mu.Unlock()
		close(done)
	}()

	if sub == nil {
		var ok bool
		if sub, ok = q.resubscribe(ctx); !ok {
			return
		}
		q.setDetached(false)
		// changes made while the feed was down were never announced
		if !q.refetch(ctx, onResult) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			q.logger.Debug(ctx, "live query change", "table", ev.Table, "type", ev.Type)
			if !q.refetch(ctx, onResult) {
				return
			}
		}
	}
}

// refetch runs the query and delivers the outcome. It reports false when ctx
// ended during the fetch; nothing is delivered then.
func (q *Query[T]) refetch(ctx context.Context, onResult func([]T, error)) bool {
	items, err := q.fetch(ctx)
	if ctx.Err() != nil {
		return false
	}
	q.record(items, err)
	if err != nil {
		q.logger.Warn(ctx, "live query re-fetch failed", "table", q.table, "error", err)
	}
	onResult(items, err)
	return true
}
