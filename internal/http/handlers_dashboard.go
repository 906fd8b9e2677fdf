package http

import (
	"bytes"
	"net/http"
	"time"

	"gofinances/internal/dashboard"
	"gofinances/internal/locale"
	applog "gofinances/internal/log"
)

// pageData is the template input for both the page and the partial.
type pageData struct {
	Locale         string
	Labels         locale.Labels
	State          dashboard.State
	LastUpdated    string
	RefreshSeconds int
}

// dashboardResponse is the JSON rendition of the view state.
type dashboardResponse struct {
	Status       dashboard.Status            `json:"status"`
	Transactions []dashboard.TransactionView `json:"transactions"`
	Balance      dashboard.BalanceView       `json:"balance"`
	Error        string                      `json:"error,omitempty"`
	LoadedAt     *time.Time                  `json:"loaded_at,omitempty"`
	Locale       string                      `json:"locale"`
	Currency     string                      `json:"currency"`
}

// mount returns the state to render. Without a poller every request runs
// the full pipeline; with one, the held state is served.
func (s *Server) mount(r *http.Request) dashboard.State {
	if s.refresh > 0 {
		return s.loader.Current()
	}
	return s.loader.Load(r.Context())
}

// statusFor maps the view status to the HTTP status of the response.
func statusFor(state dashboard.State) int {
	if state.Failed() {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

// isHTMXRequest reports whether r was issued by htmx. htmx does not swap
// error responses, so these requests get the failure banner with a 200.
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func (s *Server) pageData(state dashboard.State) pageData {
	data := pageData{
		Locale: s.formatter.Name(),
		Labels: s.formatter.Labels(),
		State:  state,
	}
	if state.Loaded() {
		data.LastUpdated = s.formatter.DateTime(state.LoadedAt)
	}
	if s.refresh > 0 {
		data.RefreshSeconds = int(s.refresh.Round(time.Second) / time.Second)
		if data.RefreshSeconds < 1 {
			data.RefreshSeconds = 1
		}
	}
	return data
}

// handleIndex renders the full dashboard page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError("Page not found").Write(w)
		return
	}
	if !requireGET(w, r) {
		return
	}
	s.render(w, r, "dashboard.html", false)
}

// handleDashboardPartial renders the cards and table for HTMX swaps.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	s.render(w, r, "dashboard_partial", true)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, partial bool) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	state := s.mount(r)

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, s.pageData(state)); err != nil {
		s.appMetrics.renderErrors.Add(1)
		logger.ErrorContext(ctx, "Dashboard template execution failed",
			applog.FieldError, err,
			"template", name)
		InternalServerError("Error rendering dashboard").Write(w)
		return
	}
	s.appMetrics.pageRenders.Add(1)

	status := statusFor(state)
	if isHTMXRequest(r) {
		status = http.StatusOK
	}
	resp := NewHTMXResponse().Status(status).BodyHTML(buf.String())
	if partial {
		switch {
		case state.Failed():
			resp.TriggerDashboardFailed()
		case state.Loaded():
			resp.TriggerDashboardLoaded(len(state.Transactions))
		}
	}
	resp.Write(w)
}

// handleDashboardJSON returns the presented view as JSON.
func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	state := s.mount(r)
	resp := dashboardResponse{
		Status:       state.Status,
		Transactions: state.Transactions,
		Balance:      state.Balance,
		Locale:       s.formatter.Name(),
		Currency:     s.formatter.CurrencyCode(),
	}
	if state.Failed() {
		// Upstream error text stays in the logs.
		resp.Error = s.formatter.Labels().LoadFailed
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Serving failed dashboard state",
			applog.FieldError, state.ErrorMessage())
	}
	if resp.Transactions == nil {
		resp.Transactions = []dashboard.TransactionView{}
	}
	if !state.LoadedAt.IsZero() {
		loadedAt := state.LoadedAt
		resp.LoadedAt = &loadedAt
	}
	writeJSON(w, statusFor(state), resp)
}
