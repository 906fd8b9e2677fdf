package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"gofinances/internal/api"
	applog "gofinances/internal/log"
)

// Loader runs the fetch, present and store pipeline. Concurrent loads share
// one upstream request.
type Loader struct {
	source    api.Source
	formatter Formatter
	observers []Observer
	logger    *applog.Logger
	now       func() time.Time
	timeout   time.Duration

	group singleflight.Group

	mu    sync.RWMutex
	state State

	loads    atomic.Int64
	failures atomic.Int64
	shared   atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithObservers registers hooks that run after every load.
func WithObservers(obs ...Observer) Option {
	return func(l *Loader) { l.observers = append(l.observers, obs...) }
}

func WithLogger(logger *applog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// WithFetchTimeout bounds a shared fetch, which does not stop when the
// caller that started it goes away.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

func NewLoader(source api.Source, formatter Formatter, opts ...Option) *Loader {
	l := &Loader{
		source:    source,
		formatter: formatter,
		now:       time.Now,
		state:     State{Status: StatusUnloaded},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentDashboard})
	}
	return l
}

// Load fetches a statement and replaces the held state with the result. A
// failed fetch yields a failed state with empty values and the error.
//
// The fetch is shared with concurrent callers and runs detached from ctx, so
// one caller cancelling does not fail the others. A caller whose ctx ends
// first gets a failed state carrying ctx.Err(); the held state is unchanged.
func (l *Loader) Load(ctx context.Context) State {
	ch := l.group.DoChan("statement", func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if l.timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, l.timeout)
			defer cancel()
		}
		return l.load(fetchCtx), nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			l.shared.Add(1)
		}
		return res.Val.(State).clone()
	case <-ctx.Done():
		return State{Status: StatusFailed, Err: ctx.Err(), LoadedAt: l.now()}
	}
}

func (l *Loader) load(ctx context.Context) State {
	start := l.now()
	l.loads.Add(1)

	st, err := l.source.Fetch(ctx)
	if err != nil {
		l.failures.Add(1)
		state := State{Status: StatusFailed, Err: err, LoadedAt: l.now()}
		l.store(state)
		l.logger.WarnContext(ctx, "Dashboard load failed",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err.Error())
		for _, o := range l.observers {
			o.OnFailed(ctx, err)
		}
		return state
	}

	rows, balance := Present(st, l.formatter)
	state := State{
		Status:       StatusLoaded,
		Transactions: rows,
		Balance:      balance,
		LoadedAt:     l.now(),
	}
	l.store(state)

	l.logger.DebugContext(ctx, "Dashboard loaded",
		applog.FieldTransactions, len(rows),
		applog.FieldDuration, l.now().Sub(start).Milliseconds())

	for _, o := range l.observers {
		if err := o.OnLoaded(ctx, st, state); err != nil {
			l.logger.ErrorContext(ctx, "Load observer failed",
				applog.FieldError, err.Error(),
				"observer", o.Name())
		}
	}
	return state
}

func (l *Loader) store(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Current returns the most recently stored state without fetching.
func (l *Loader) Current() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone()
}

// Stats are cumulative loader counters.
type Stats struct {
	Loads    int64
	Failures int64
	Shared   int64
	Status   Status
}

func (l *Loader) Stats() Stats {
	l.mu.RLock()
	status := l.state.Status
	l.mu.RUnlock()
	return Stats{
		Loads:    l.loads.Load(),
		Failures: l.failures.Load(),
		Shared:   l.shared.Load(),
		Status:   status,
	}
}
