package dashboard

import (
	"context"
	"fmt"
	"time"

	"gofinances/internal/core"
	applog "gofinances/internal/log"
	"gofinances/internal/storage"
)

// Observer is notified after each load, once the new state is stored.
// Errors returned by OnLoaded are logged and never reach the page.
type Observer interface {
	Name() string
	OnLoaded(ctx context.Context, st core.Statement, state State) error
	OnFailed(ctx context.Context, err error)
}

// LogObserver writes one structured record per load.
type LogObserver struct {
	log *applog.StructuredLogger
}

func NewLogObserver(logger *applog.Logger) *LogObserver {
	return &LogObserver{log: applog.NewStructuredLogger(logger)}
}

func (o *LogObserver) Name() string { return "log" }

func (o *LogObserver) OnLoaded(ctx context.Context, st core.Statement, state State) error {
	o.log.LogDashboardLoaded(ctx, len(st.Transactions),
		st.Balance.Income.Cents, st.Balance.Outcome.Cents, st.Balance.Total.Cents)
	return nil
}

func (o *LogObserver) OnFailed(ctx context.Context, err error) {
	o.log.LogError(ctx, "Dashboard load failed", err, applog.OpLoad, nil)
}

// SnapshotRecorder persists balance snapshots.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, st core.Statement, fetchedAt time.Time) (storage.Snapshot, bool, error)
}

// SnapshotPublisher announces newly recorded snapshots.
type SnapshotPublisher interface {
	PublishSnapshotRecorded(ctx context.Context, id int64) error
}

// JournalObserver records a snapshot for every successful load whose content
// changed, then publishes it when a publisher is configured.
type JournalObserver struct {
	recorder  SnapshotRecorder
	publisher SnapshotPublisher
}

// NewJournalObserver builds the observer; publisher may be nil.
func NewJournalObserver(recorder SnapshotRecorder, publisher SnapshotPublisher) *JournalObserver {
	return &JournalObserver{recorder: recorder, publisher: publisher}
}

func (o *JournalObserver) Name() string { return "journal" }

func (o *JournalObserver) OnLoaded(ctx context.Context, st core.Statement, state State) error {
	// The journal write outlives a disconnected viewer.
	ctx = context.WithoutCancel(ctx)

	snap, recorded, err := o.recorder.RecordSnapshot(ctx, st, state.LoadedAt)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	if !recorded || o.publisher == nil {
		return nil
	}
	if err := o.publisher.PublishSnapshotRecorded(ctx, snap.ID); err != nil {
		// The worker's catch-up pass will still export the snapshot.
		return fmt.Errorf("publish snapshot %d: %w", snap.ID, err)
	}
	return nil
}

func (o *JournalObserver) OnFailed(context.Context, error) {}
