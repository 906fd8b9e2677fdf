// Package locale renders money and dates for a single fixed target locale,
// independent of where the dashboard is viewed from.
package locale

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"gofinances/internal/core"
)

const (
	DefaultLocale   = "pt-BR"
	DefaultCurrency = "BRL"
)

// Labels are the user-facing strings of the dashboard in one language.
type Labels struct {
	Income      string
	Outcome     string
	Total       string
	Title       string
	Price       string
	Category    string
	Date        string
	Empty       string
	LoadFailed  string
	NotLoaded   string
	LastUpdated string
}

type profile struct {
	dateLayout string
	labels     Labels
}

var profiles = map[string]profile{
	"pt-BR": {
		dateLayout: "02/01/2006",
		labels: Labels{
			Income: "Entradas", Outcome: "Saídas", Total: "Total",
			Title: "Título", Price: "Preço", Category: "Categoria", Date: "Data",
			Empty:       "Nenhuma transação cadastrada",
			LoadFailed:  "Não foi possível carregar as transações",
			NotLoaded:   "Carregando…",
			LastUpdated: "Atualizado em",
		},
	},
	"en-US": {
		dateLayout: "1/2/2006",
		labels: Labels{
			Income: "Income", Outcome: "Outcome", Total: "Total",
			Title: "Title", Price: "Price", Category: "Category", Date: "Date",
			Empty:       "No transactions yet",
			LoadFailed:  "Could not load transactions",
			NotLoaded:   "Loading…",
			LastUpdated: "Updated at",
		},
	},
	"en-GB": {
		dateLayout: "02/01/2006",
		labels: Labels{
			Income: "Income", Outcome: "Outcome", Total: "Total",
			Title: "Title", Price: "Price", Category: "Category", Date: "Date",
			Empty:       "No transactions yet",
			LoadFailed:  "Could not load transactions",
			NotLoaded:   "Loading…",
			LastUpdated: "Updated at",
		},
	},
	"it-IT": {
		dateLayout: "02/01/2006",
		labels: Labels{
			Income: "Entrate", Outcome: "Uscite", Total: "Totale",
			Title: "Titolo", Price: "Importo", Category: "Categoria", Date: "Data",
			Empty:       "Nessuna transazione",
			LoadFailed:  "Impossibile caricare le transazioni",
			NotLoaded:   "Caricamento…",
			LastUpdated: "Aggiornato il",
		},
	},
}

// Supported returns the locale names New accepts.
func Supported() []string {
	return []string{"en-GB", "en-US", "it-IT", "pt-BR"}
}

// Formatter maps amounts and timestamps to display strings. It is safe for
// concurrent use.
type Formatter struct {
	tag      language.Tag
	name     string
	unit     currency.Unit
	location *time.Location
	profile  profile
}

// New builds a Formatter for a locale name (e.g. "pt-BR"), an ISO 4217
// currency code and the time zone used for timestamps that carry a time of
// day. A nil location means UTC.
func New(name, currencyCode string, loc *time.Location) (*Formatter, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unsupported locale %q: must be one of %v", name, Supported())
	}
	tag, err := language.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", name, err)
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(currencyCode)))
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{tag: tag, name: name, unit: unit, location: loc, profile: p}, nil
}

// MustDefault returns the pt-BR/BRL formatter in UTC.
func MustDefault() *Formatter {
	f, err := New(DefaultLocale, DefaultCurrency, time.UTC)
	if err != nil {
		panic(err)
	}
	return f
}

// Currency formats m with the locale's grouping and decimal separators and
// the currency symbol, e.g. "R$ 1.500,50". Negative amounts get a leading
// minus before the symbol.
func (f *Formatter) Currency(m core.Money) string {
	p := message.NewPrinter(f.tag)
	s := p.Sprint(currency.Symbol(f.unit.Amount(m.Abs().Units())))
	if m.IsNegative() {
		return "-" + s
	}
	return s
}

// Date formats ts as a calendar date in the locale's short layout. Dates
// without a time of day are rendered as-is; full timestamps are first moved
// to the formatter's display time zone.
func (f *Formatter) Date(ts core.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	t := ts.Time
	if !ts.DateOnly {
		t = t.In(f.location)
	}
	return t.Format(f.profile.dateLayout)
}

// DateTime formats t with date and minutes, used for "last updated" notes.
func (f *Formatter) DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.location).Format(f.profile.dateLayout + " 15:04")
}

func (f *Formatter) Labels() Labels {
	return f.profile.labels
}

// Name returns the locale name, e.g. "pt-BR".
func (f *Formatter) Name() string {
	return f.name
}

// CurrencyCode returns the ISO 4217 code.
func (f *Formatter) CurrencyCode() string {
	return f.unit.String()
}
