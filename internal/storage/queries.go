package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Sync states of a snapshot row.
const (
	SyncPending   = "pending"
	SyncExporting = "exporting"
	SyncSynced    = "synced"
	SyncError     = "error"
)

// Snapshot is one row of the balance journal.
type Snapshot struct {
	ID               int64
	FetchedAt        time.Time
	TransactionCount int64
	IncomeCents      int64
	OutcomeCents     int64
	TotalCents       int64
	Fingerprint      string
	SyncStatus       string
	SyncAttempts     int64
	SyncedAt         sql.NullTime
}

const snapshotColumns = `id, fetched_at, transaction_count, income_cents, outcome_cents, total_cents, fingerprint, sync_status, sync_attempts, synced_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		s         Snapshot
		fetchedAt string
		syncedAt  sql.NullString
	)
	if err := row.Scan(&s.ID, &fetchedAt, &s.TransactionCount, &s.IncomeCents, &s.OutcomeCents,
		&s.TotalCents, &s.Fingerprint, &s.SyncStatus, &s.SyncAttempts, &syncedAt); err != nil {
		return Snapshot{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse fetched_at %q: %w", fetchedAt, err)
	}
	s.FetchedAt = t
	if syncedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, syncedAt.String); err == nil {
			s.SyncedAt = sql.NullTime{Time: t, Valid: true}
		}
	}
	return s, nil
}

const createSnapshot = `-- name: CreateSnapshot :one
INSERT INTO snapshots (fetched_at, transaction_count, income_cents, outcome_cents, total_cents, fingerprint)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + snapshotColumns

type CreateSnapshotParams struct {
	FetchedAt        time.Time
	TransactionCount int64
	IncomeCents      int64
	OutcomeCents     int64
	TotalCents       int64
	Fingerprint      string
}

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, createSnapshot,
		arg.FetchedAt.UTC().Format(time.RFC3339Nano),
		arg.TransactionCount,
		arg.IncomeCents,
		arg.OutcomeCents,
		arg.TotalCents,
		arg.Fingerprint,
	)
	return scanSnapshot(row)
}

const getSnapshot = `-- name: GetSnapshot :one
SELECT ` + snapshotColumns + ` FROM snapshots WHERE id = ?`

func (q *Queries) GetSnapshot(ctx context.Context, id int64) (Snapshot, error) {
	return scanSnapshot(q.db.QueryRowContext(ctx, getSnapshot, id))
}

const getLatestSnapshot = `-- name: GetLatestSnapshot :one
SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY id DESC LIMIT 1`

func (q *Queries) GetLatestSnapshot(ctx context.Context) (Snapshot, error) {
	return scanSnapshot(q.db.QueryRowContext(ctx, getLatestSnapshot))
}

const getPendingSyncSnapshots = `-- name: GetPendingSyncSnapshots :many
SELECT ` + snapshotColumns + ` FROM snapshots
WHERE sync_status IN ('pending', 'error')
ORDER BY id ASC
LIMIT ?`

func (q *Queries) GetPendingSyncSnapshots(ctx context.Context, limit int64) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSyncSnapshots, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const claimSnapshotForExport = `-- name: ClaimSnapshotForExport :execrows
UPDATE snapshots SET sync_status = 'exporting'
WHERE id = ? AND sync_status IN ('pending', 'error')`

func (q *Queries) ClaimSnapshotForExport(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimSnapshotForExport, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const releaseExportClaims = `-- name: ReleaseExportClaims :execrows
UPDATE snapshots SET sync_status = 'pending' WHERE sync_status = 'exporting'`

func (q *Queries) ReleaseExportClaims(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, releaseExportClaims)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSnapshotSynced = `-- name: MarkSnapshotSynced :execrows
UPDATE snapshots SET sync_status = 'synced', synced_at = ? WHERE id = ?`

func (q *Queries) MarkSnapshotSynced(ctx context.Context, id int64, at time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSnapshotSynced, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSnapshotSyncError = `-- name: MarkSnapshotSyncError :execrows
UPDATE snapshots SET sync_status = 'error', sync_attempts = sync_attempts + 1 WHERE id = ?`

func (q *Queries) MarkSnapshotSyncError(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSnapshotSyncError, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countSnapshotsByStatus = `-- name: CountSnapshotsByStatus :one
SELECT COUNT(*) FROM snapshots WHERE sync_status = ?`

func (q *Queries) CountSnapshotsByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSnapshotsByStatus, status).Scan(&n)
	return n, err
}
