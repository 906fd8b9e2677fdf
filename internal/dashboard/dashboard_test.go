package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gofinances/internal/core"
	"gofinances/internal/locale"
	"gofinances/internal/storage"
)

type sourceFunc func(ctx context.Context) (core.Statement, error)

func (f sourceFunc) Fetch(ctx context.Context) (core.Statement, error) { return f(ctx) }

func mustTimestamp(t *testing.T, s string) core.Timestamp {
	t.Helper()
	ts, err := core.ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp(%q): %v", s, err)
	}
	return ts
}

func salaryStatement(t *testing.T) core.Statement {
	return core.Statement{
		Transactions: []core.Transaction{{
			ID:        "1",
			Title:     "Salary",
			Value:     core.Money{Cents: 500000},
			Type:      core.Income,
			Category:  core.Category{Title: "Job"},
			CreatedAt: mustTimestamp(t, "2024-01-05"),
		}},
		Balance: core.Balance{
			Income:  core.Money{Cents: 500000},
			Outcome: core.Money{Cents: 0},
			Total:   core.Money{Cents: 500000},
		},
	}
}

func TestPresent(t *testing.T) {
	rows, balance := Present(salaryStatement(t), locale.MustDefault())

	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := TransactionView{
		ID: "1", Title: "Salary", Type: "income", Category: "Job",
		FormattedValue: "R$ 5.000,00", FormattedDate: "05/01/2024",
	}
	if rows[0] != want {
		t.Errorf("row = %+v, want %+v", rows[0], want)
	}
	if balance != (BalanceView{Income: "R$ 5.000,00", Outcome: "R$ 0,00", Total: "R$ 5.000,00"}) {
		t.Errorf("balance = %+v", balance)
	}
}

func TestPresentUsesFormatterForEveryValue(t *testing.T) {
	f := locale.MustDefault()
	st := core.Statement{Transactions: []core.Transaction{
		{ID: "a", Title: "Rent", Value: core.Money{Cents: 150050}, Type: core.Outcome},
		{ID: "b", Title: "Gift", Value: core.Money{Cents: 5}, Type: core.Income},
	}}

	rows, _ := Present(st, f)
	for i, tx := range st.Transactions {
		if rows[i].FormattedValue != f.Currency(tx.Value) {
			t.Errorf("row %d value = %q, want %q", i, rows[i].FormattedValue, f.Currency(tx.Value))
		}
		if rows[i].Type != string(tx.Type) {
			t.Errorf("row %d type = %q", i, rows[i].Type)
		}
	}
	if rows[0].FormattedValue != "R$ 1.500,50" {
		t.Errorf("1500.5 rendered as %q", rows[0].FormattedValue)
	}
}

func TestPresentEmpty(t *testing.T) {
	rows, balance := Present(core.Statement{}, locale.MustDefault())
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
	if balance.Income != "R$ 0,00" || balance.Outcome != "R$ 0,00" || balance.Total != "R$ 0,00" {
		t.Errorf("balance = %+v", balance)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	loaded  []State
	failed  []error
	loadErr error
}

func (o *recordingObserver) Name() string { return "recording" }

func (o *recordingObserver) OnLoaded(_ context.Context, _ core.Statement, s State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loaded = append(o.loaded, s)
	return o.loadErr
}

func (o *recordingObserver) OnFailed(_ context.Context, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func TestLoaderLoad(t *testing.T) {
	obs := &recordingObserver{loadErr: errors.New("observer broke")}
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	l := NewLoader(sourceFunc(func(context.Context) (core.Statement, error) {
		return salaryStatement(t), nil
	}), locale.MustDefault(), WithObservers(obs), WithClock(func() time.Time { return now }))

	if got := l.Current(); got.Status != StatusUnloaded {
		t.Fatalf("initial status = %s", got.Status)
	}

	state := l.Load(context.Background())
	if !state.Loaded() || !state.HasTransactions() || state.Err != nil {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Balance.Total != "R$ 5.000,00" || !state.LoadedAt.Equal(now) {
		t.Errorf("unexpected state: %+v", state)
	}
	if len(obs.loaded) != 1 {
		t.Errorf("observer called %d times", len(obs.loaded))
	}
	if cur := l.Current(); !cur.Loaded() || len(cur.Transactions) != 1 {
		t.Errorf("Current() = %+v", cur)
	}

	// Mutating a returned state must not leak into the held one.
	state.Transactions[0].Title = "changed"
	if l.Current().Transactions[0].Title != "Salary" {
		t.Error("Current() shares memory with Load() result")
	}
}

func TestLoaderFailure(t *testing.T) {
	obs := &recordingObserver{}
	boom := errors.New("upstream down")
	calls := 0
	l := NewLoader(sourceFunc(func(context.Context) (core.Statement, error) {
		calls++
		if calls == 1 {
			return salaryStatement(t), nil
		}
		return core.Statement{}, boom
	}), locale.MustDefault(), WithObservers(obs))

	l.Load(context.Background())
	state := l.Load(context.Background())

	if !state.Failed() || !errors.Is(state.Err, boom) {
		t.Fatalf("expected failed state, got %+v", state)
	}
	if state.HasTransactions() || state.Balance != (BalanceView{}) {
		t.Errorf("failed state must carry empty values: %+v", state)
	}
	if state.ErrorMessage() != "upstream down" {
		t.Errorf("ErrorMessage() = %q", state.ErrorMessage())
	}
	if len(obs.failed) != 1 {
		t.Errorf("OnFailed called %d times", len(obs.failed))
	}
	stats := l.Stats()
	if stats.Loads != 2 || stats.Failures != 1 || stats.Status != StatusFailed {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLoaderCoalescesConcurrentLoads(t *testing.T) {
	var fetches atomic.Int64
	release := make(chan struct{})
	l := NewLoader(sourceFunc(func(context.Context) (core.Statement, error) {
		fetches.Add(1)
		<-release
		return salaryStatement(t), nil
	}), locale.MustDefault())

	const n = 8
	var wg sync.WaitGroup
	results := make([]State, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.Load(context.Background())
		}(i)
	}

	// Give the goroutines time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("expected one upstream fetch, got %d", got)
	}
	for i, s := range results {
		if !s.Loaded() {
			t.Errorf("result %d not loaded: %+v", i, s)
		}
	}
}

func TestLoaderSharedFetchOutlivesFirstCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var fetches atomic.Int64
	l := NewLoader(sourceFunc(func(ctx context.Context) (core.Statement, error) {
		if fetches.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return core.Statement{}, err
		}
		return salaryStatement(t), nil
	}), locale.MustDefault())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan State, 1)
	go func() { first <- l.Load(firstCtx) }()
	<-started

	second := make(chan State, 1)
	go func() { second <- l.Load(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	// The viewer that started the fetch goes away before it completes.
	cancelFirst()
	if s := <-first; !s.Failed() || !errors.Is(s.Err, context.Canceled) {
		t.Errorf("cancelled caller got %+v", s)
	}
	close(release)

	if s := <-second; !s.Loaded() {
		t.Fatalf("second caller got %+v, want loaded", s)
	}
	if cur := l.Current(); !cur.Loaded() {
		t.Errorf("Current() = %+v, want loaded", cur)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("expected one upstream fetch, got %d", got)
	}
}

func TestLoaderFetchTimeout(t *testing.T) {
	l := NewLoader(sourceFunc(func(ctx context.Context) (core.Statement, error) {
		<-ctx.Done()
		return core.Statement{}, ctx.Err()
	}), locale.MustDefault(), WithFetchTimeout(20*time.Millisecond))

	state := l.Load(context.Background())
	if !state.Failed() || !errors.Is(state.Err, context.DeadlineExceeded) {
		t.Fatalf("state = %+v, want deadline failure", state)
	}
}

type fakeRecorder struct {
	snap     storage.Snapshot
	recorded bool
	err      error
	calls    int
}

func (f *fakeRecorder) RecordSnapshot(ctx context.Context, st core.Statement, at time.Time) (storage.Snapshot, bool, error) {
	f.calls++
	return f.snap, f.recorded, f.err
}

type fakePublisher struct {
	ids []int64
	err error
}

func (f *fakePublisher) PublishSnapshotRecorded(ctx context.Context, id int64) error {
	f.ids = append(f.ids, id)
	return f.err
}

func TestJournalObserver(t *testing.T) {
	ctx := context.Background()
	st := salaryStatement(t)

	t.Run("records and publishes", func(t *testing.T) {
		rec := &fakeRecorder{snap: storage.Snapshot{ID: 7}, recorded: true}
		pub := &fakePublisher{}
		if err := NewJournalObserver(rec, pub).OnLoaded(ctx, st, State{}); err != nil {
			t.Fatal(err)
		}
		if len(pub.ids) != 1 || pub.ids[0] != 7 {
			t.Errorf("published = %v", pub.ids)
		}
	})

	t.Run("unchanged snapshot is not published", func(t *testing.T) {
		rec := &fakeRecorder{snap: storage.Snapshot{ID: 7}, recorded: false}
		pub := &fakePublisher{}
		if err := NewJournalObserver(rec, pub).OnLoaded(ctx, st, State{}); err != nil {
			t.Fatal(err)
		}
		if len(pub.ids) != 0 {
			t.Errorf("published = %v", pub.ids)
		}
	})

	t.Run("no publisher", func(t *testing.T) {
		rec := &fakeRecorder{snap: storage.Snapshot{ID: 1}, recorded: true}
		if err := NewJournalObserver(rec, nil).OnLoaded(ctx, st, State{}); err != nil {
			t.Fatal(err)
		}
		if rec.calls != 1 {
			t.Errorf("recorder calls = %d", rec.calls)
		}
	})

	t.Run("errors are returned", func(t *testing.T) {
		rec := &fakeRecorder{err: errors.New("disk full")}
		if err := NewJournalObserver(rec, nil).OnLoaded(ctx, st, State{}); err == nil {
			t.Fatal("expected record error")
		}
		rec = &fakeRecorder{snap: storage.Snapshot{ID: 2}, recorded: true}
		pub := &fakePublisher{err: errors.New("broker down")}
		if err := NewJournalObserver(rec, pub).OnLoaded(ctx, st, State{}); err == nil {
			t.Fatal("expected publish error")
		}
	})
}

func TestPollerLoadsImmediatelyAndStops(t *testing.T) {
	var fetches atomic.Int64
	l := NewLoader(sourceFunc(func(context.Context) (core.Statement, error) {
		fetches.Add(1)
		return salaryStatement(t), nil
	}), locale.MustDefault())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPoller(l, 10*time.Millisecond).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for fetches.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	if fetches.Load() < 2 {
		t.Errorf("expected at least 2 loads, got %d", fetches.Load())
	}
	if !l.Current().Loaded() {
		t.Error("poller should leave a loaded state")
	}
}
