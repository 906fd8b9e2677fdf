package sheets

import (
	"context"
)

// SnapshotRow is one exported journal entry, already formatted for humans.
type SnapshotRow struct {
	SnapshotID   int64
	FetchedAt    string
	Transactions int64
	Income       string
	Outcome      string
	Total        string
}

// Values returns the row as spreadsheet cells, in column order.
func (r SnapshotRow) Values() []any {
	return []any{r.SnapshotID, r.FetchedAt, r.Transactions, r.Income, r.Outcome, r.Total}
}

// Header is the column header row matching SnapshotRow.Values.
var Header = []any{"ID", "Fetched at", "Transactions", "Income", "Outcome", "Total"}

// Ports for outbound adapters.
type (
	// SnapshotExporter appends journal snapshots to an external sheet.
	SnapshotExporter interface {
		AppendSnapshot(ctx context.Context, row SnapshotRow) (rowRef string, err error)
	}
)
