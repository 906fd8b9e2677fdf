package dashboard

import "time"

// Status is the lifecycle of the dashboard view.
type Status string

const (
	StatusUnloaded Status = "unloaded"
	StatusLoaded   Status = "loaded"
	StatusFailed   Status = "failed"
)

// State is everything the page renders from. Transactions and Balance are
// always replaced together.
type State struct {
	Status       Status
	Transactions []TransactionView
	Balance      BalanceView
	Err          error
	LoadedAt     time.Time
}

// Loaded reports whether the last load succeeded.
func (s State) Loaded() bool { return s.Status == StatusLoaded }

// Failed reports whether the last load failed.
func (s State) Failed() bool { return s.Status == StatusFailed }

// HasTransactions reports whether the table should be rendered.
func (s State) HasTransactions() bool { return len(s.Transactions) > 0 }

// ErrorMessage returns the load error text, or "".
func (s State) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

func (s State) clone() State {
	if s.Transactions != nil {
		rows := make([]TransactionView, len(s.Transactions))
		copy(rows, s.Transactions)
		s.Transactions = rows
	}
	return s
}
