package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gofinances/internal/core"

	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup.
var ErrSnapshotNotFound = errors.New("snapshot not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialise through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the journal database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Fingerprint identifies the content of a statement. Two statements with the
// same transactions and balance share a fingerprint.
func Fingerprint(st core.Statement) string {
	h := sha256.New()
	for _, t := range st.Transactions {
		fmt.Fprintf(h, "%s|%s|%d|%s|%s\n", t.ID, t.Type, t.Value.Cents, t.Category.Title, t.Title)
	}
	fmt.Fprintf(h, "balance|%d|%d|%d", st.Balance.Income.Cents, st.Balance.Outcome.Cents, st.Balance.Total.Cents)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordSnapshot journals the balance of a loaded statement. When the latest
// snapshot has the same fingerprint nothing is written and recorded is false.
func (r *SQLiteRepository) RecordSnapshot(ctx context.Context, st core.Statement, fetchedAt time.Time) (snap Snapshot, recorded bool, err error) {
	fingerprint := Fingerprint(st)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	q := r.queries.WithTx(tx)

	latest, err := q.GetLatestSnapshot(ctx)
	switch {
	case err == nil && latest.Fingerprint == fingerprint:
		if err := tx.Commit(); err != nil {
			return Snapshot{}, false, fmt.Errorf("commit: %w", err)
		}
		slog.DebugContext(ctx, "Snapshot unchanged, skipping", "snapshot_id", latest.ID)
		return latest, false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return Snapshot{}, false, fmt.Errorf("get latest snapshot: %w", err)
	}

	if fetchedAt.IsZero() {
		fetchedAt = r.now()
	}
	snap, err = q.CreateSnapshot(ctx, CreateSnapshotParams{
		FetchedAt:        fetchedAt,
		TransactionCount: int64(len(st.Transactions)),
		IncomeCents:      st.Balance.Income.Cents,
		OutcomeCents:     st.Balance.Outcome.Cents,
		TotalCents:       st.Balance.Total.Cents,
		Fingerprint:      fingerprint,
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("create snapshot: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Snapshot{}, false, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot recorded",
		"snapshot_id", snap.ID,
		"transactions", snap.TransactionCount,
		"total_cents", snap.TotalCents)

	return snap, true, nil
}

// GetSnapshot retrieves a single snapshot by ID
func (r *SQLiteRepository) GetSnapshot(ctx context.Context, id int64) (Snapshot, error) {
	s, err := r.queries.GetSnapshot(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: id %s", ErrSnapshotNotFound, strconv.FormatInt(id, 10))
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot by id: %w", err)
	}
	return s, nil
}

// LatestSnapshot returns the most recent snapshot.
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context) (Snapshot, error) {
	s, err := r.queries.GetLatestSnapshot(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get latest snapshot: %w", err)
	}
	return s, nil
}

// GetPendingSnapshots returns snapshots that still need to be exported,
// oldest first. Snapshots whose previous export failed are included.
func (r *SQLiteRepository) GetPendingSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	items, err := r.queries.GetPendingSyncSnapshots(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending snapshots: %w", err)
	}
	return items, nil
}

// ClaimSnapshot moves a pending or failed snapshot to the exporting state.
// It reports false when the snapshot is already claimed, synced or missing,
// so only one exporter appends a given snapshot.
func (r *SQLiteRepository) ClaimSnapshot(ctx context.Context, id int64) (bool, error) {
	n, err := r.queries.ClaimSnapshotForExport(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim snapshot: %w", err)
	}
	return n == 1, nil
}

// ReleaseClaims returns snapshots left in the exporting state, for example by
// a worker that stopped mid-export, to pending.
func (r *SQLiteRepository) ReleaseClaims(ctx context.Context) (int64, error) {
	n, err := r.queries.ReleaseExportClaims(ctx)
	if err != nil {
		return 0, fmt.Errorf("release export claims: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Released stale export claims", "count", n)
	}
	return n, nil
}

// MarkSynced marks a snapshot as successfully exported
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	n, err := r.queries.MarkSnapshotSynced(ctx, id, r.now())
	if err != nil {
		return fmt.Errorf("mark snapshot synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrSnapshotNotFound, id)
	}

	slog.InfoContext(ctx, "Snapshot marked as synced", "snapshot_id", id)
	return nil
}

// MarkSyncError marks a snapshot as having export errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	n, err := r.queries.MarkSnapshotSyncError(ctx, id)
	if err != nil {
		return fmt.Errorf("mark snapshot sync error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrSnapshotNotFound, id)
	}

	slog.WarnContext(ctx, "Snapshot marked with sync error", "snapshot_id", id)
	return nil
}

// CountByStatus returns how many snapshots are in the given sync state.
func (r *SQLiteRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	n, err := r.queries.CountSnapshotsByStatus(ctx, status)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}
