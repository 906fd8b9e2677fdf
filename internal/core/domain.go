package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Outcome TransactionType = "outcome"
)

type (
	// TransactionType discriminates credits from debits.
	TransactionType string

	// Money is a signed amount in cents.
	Money struct {
		Cents int64
	}

	// Timestamp is a point in time decoded from the upstream API. DateOnly is
	// set when the source carried a calendar date without a time of day.
	Timestamp struct {
		time.Time
		DateOnly bool
	}

	Category struct {
		Title string `json:"title"`
	}

	// Transaction is a single financial entry as supplied by the backend.
	// It is read-only: display fields live in the dashboard package.
	Transaction struct {
		ID        string          `json:"id"`
		Title     string          `json:"title"`
		Value     Money           `json:"value"`
		Type      TransactionType `json:"type"`
		Category  Category        `json:"category"`
		CreatedAt Timestamp       `json:"created_at"`
	}

	// Balance holds the server-computed aggregates for the transaction set.
	Balance struct {
		Income  Money `json:"income"`
		Outcome Money `json:"outcome"`
		Total   Money `json:"total"`
	}

	// Statement is the body of GET /transactions. The list and the balance
	// always travel together.
	Statement struct {
		Transactions []Transaction `json:"transactions"`
		Balance      Balance       `json:"balance"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrEmptyID          = errors.New("empty transaction id")
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Outcome
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, string(t.Type))
	}
	return nil
}

// Validate checks every transaction and reports the first offending index.
func (s Statement) Validate() error {
	for i, t := range s.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}

var timestampLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05.999999999-0700", false},
	{"2006-01-02T15:04:05.999999999-07", false},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", true},
}

// ParseTimestamp accepts RFC 3339 timestamps, zone-less timestamps (read as
// UTC) and bare YYYY-MM-DD dates.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return Timestamp{Time: t, DateOnly: l.dateOnly}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*ts = Timestamp{}
		return nil
	}
	if !strings.HasPrefix(raw, `"`) {
		// Epoch milliseconds.
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTimestamp, raw)
		}
		*ts = Timestamp{Time: time.UnixMilli(ms).UTC()}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	if ts.DateOnly {
		return json.Marshal(ts.Format("2006-01-02"))
	}
	return json.Marshal(ts.Format(time.RFC3339Nano))
}
