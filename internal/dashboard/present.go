// Package dashboard turns a fetched statement into display state: one
// decorated row per transaction and three formatted balance cards.
package dashboard

import (
	"gofinances/internal/core"
)

// Formatter is the display collaborator used by Present.
type Formatter interface {
	Currency(m core.Money) string
	Date(ts core.Timestamp) string
}

// TransactionView is a transaction decorated with its display strings.
type TransactionView struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	FormattedValue string `json:"formatted_value"`
	FormattedDate  string `json:"formatted_date"`
}

// BalanceView holds the three formatted balance cards.
type BalanceView struct {
	Income  string `json:"income"`
	Outcome string `json:"outcome"`
	Total   string `json:"total"`
}

// Present maps a statement to its views. It has no side effects; the list
// and the balance always come from the same statement.
func Present(st core.Statement, f Formatter) ([]TransactionView, BalanceView) {
	views := make([]TransactionView, len(st.Transactions))
	for i, t := range st.Transactions {
		views[i] = TransactionView{
			ID:             t.ID,
			Title:          t.Title,
			Type:           string(t.Type),
			Category:       t.Category.Title,
			FormattedValue: f.Currency(t.Value),
			FormattedDate:  f.Date(t.CreatedAt),
		}
	}
	balance := BalanceView{
		Income:  f.Currency(st.Balance.Income),
		Outcome: f.Currency(st.Balance.Outcome),
		Total:   f.Currency(st.Balance.Total),
	}
	return views, balance
}
