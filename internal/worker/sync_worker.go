package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gofinances/internal/amqp"
	"gofinances/internal/core"
	"gofinances/internal/sheets"
	"gofinances/internal/storage"
)

// SnapshotStore is the part of the journal the worker needs.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, id int64) (storage.Snapshot, error)
	GetPendingSnapshots(ctx context.Context, limit int) ([]storage.Snapshot, error)
	ClaimSnapshot(ctx context.Context, id int64) (bool, error)
	ReleaseClaims(ctx context.Context) (int64, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// errClaimed means another export already holds the snapshot.
var errClaimed = errors.New("snapshot claimed by another export")

// recordedError is an export failure already written to the journal. The
// periodic pass retries it.
type recordedError struct {
	err error
}

func (e *recordedError) Error() string { return e.err.Error() }
func (e *recordedError) Unwrap() error { return e.err }

// Formatter renders exported amounts and times.
type Formatter interface {
	Currency(m core.Money) string
	DateTime(t time.Time) string
}

// SyncWorker exports journal snapshots to the export sheet
type SyncWorker struct {
	store     SnapshotStore
	exporter  sheets.SnapshotExporter
	formatter Formatter
	batchSize int
}

func NewSyncWorker(store SnapshotStore, exporter sheets.SnapshotExporter, formatter Formatter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncWorker{
		store:     store,
		exporter:  exporter,
		formatter: formatter,
		batchSize: batchSize,
	}
}

// HandleSnapshotMessage exports the snapshot named by a snapshot.recorded
// message. Already-synced or claimed snapshots are acknowledged without
// exporting again. A failed export is recorded in the journal and left to the
// periodic pass, so an error is returned only when the journal itself fails.
func (w *SyncWorker) HandleSnapshotMessage(ctx context.Context, msg *amqp.SnapshotRecordedMessage) error {
	slog.InfoContext(ctx, "Processing snapshot message", "component", "worker", "snapshot_id", msg.ID)

	snap, err := w.store.GetSnapshot(ctx, msg.ID)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		// Nothing to export; acking avoids a poison message loop.
		slog.WarnContext(ctx, "Snapshot not found, dropping message", "component", "worker", "snapshot_id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get snapshot from storage: %w", err)
	}
	if snap.SyncStatus == storage.SyncSynced {
		slog.DebugContext(ctx, "Snapshot already synced", "component", "worker", "snapshot_id", msg.ID)
		return nil
	}

	err = w.exportSnapshot(ctx, snap)
	var recorded *recordedError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errClaimed):
		slog.DebugContext(ctx, "Snapshot claimed elsewhere", "component", "worker", "snapshot_id", msg.ID)
		return nil
	case errors.As(err, &recorded):
		slog.WarnContext(ctx, "Export failed, leaving snapshot for periodic sync",
			"component", "worker",
			"snapshot_id", msg.ID,
			"error", err)
		return nil
	default:
		return fmt.Errorf("export snapshot: %w", err)
	}
}

// ProcessPending exports one batch of snapshots that have not been synced yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	return w.processBatch(ctx, w.batchSize)
}

// StartupSyncCheck exports a larger backlog at worker startup, recovering
// from missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	// Claims left by a previous run that stopped mid-export.
	if _, err := w.store.ReleaseClaims(ctx); err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	synced, failed, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending snapshots found on startup", "component", "worker")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"component", "worker",
		"synced", synced,
		"errors", failed)
	return nil
}

// Run calls ProcessPending every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, _, err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "component", "worker", "error", err)
			}
		}
	}
}

func (w *SyncWorker) processBatch(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.store.GetPendingSnapshots(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending snapshots: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending snapshots", "component", "worker", "count", len(pending))

	for _, snap := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		err := w.exportSnapshot(ctx, snap)
		if errors.Is(err, errClaimed) {
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to export snapshot", "component", "worker", "snapshot_id", snap.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// Row renders a snapshot as an export row.
func (w *SyncWorker) Row(snap storage.Snapshot) sheets.SnapshotRow {
	return sheets.SnapshotRow{
		SnapshotID:   snap.ID,
		FetchedAt:    w.formatter.DateTime(snap.FetchedAt),
		Transactions: snap.TransactionCount,
		Income:       w.formatter.Currency(core.Money{Cents: snap.IncomeCents}),
		Outcome:      w.formatter.Currency(core.Money{Cents: snap.OutcomeCents}),
		Total:        w.formatter.Currency(core.Money{Cents: snap.TotalCents}),
	}
}

// exportSnapshot claims snap and appends it to the export sheet. It returns
// errClaimed when the snapshot is not claimable and a *recordedError when the
// append failed but the failure is in the journal.
func (w *SyncWorker) exportSnapshot(ctx context.Context, snap storage.Snapshot) error {
	claimed, err := w.store.ClaimSnapshot(ctx, snap.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return errClaimed
	}

	ref, err := w.exporter.AppendSnapshot(ctx, w.Row(snap))
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, snap.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "component", "worker", "snapshot_id", snap.ID, "error", markErr)
			return fmt.Errorf("append to sheets: %w (mark sync error: %v)", err, markErr)
		}
		return &recordedError{err: fmt.Errorf("append to sheets: %w", err)}
	}

	// The row is already exported; a failed mark only means a duplicate later.
	if err := w.store.MarkSynced(ctx, snap.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "component", "worker", "snapshot_id", snap.ID, "error", err)
	}

	slog.InfoContext(ctx, "Snapshot exported",
		"component", "worker",
		"snapshot_id", snap.ID,
		"sheets_ref", ref,
		"total_cents", snap.TotalCents)

	return nil
}
