package http

import (
	"net/http"

	"conti/internal/auth"
	"conti/internal/core"
)

type personalExpenseRequest struct {
	Category    string `json:"category"`
	Vendor      string `json:"vendor,omitempty"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
}

type personalExpenseResponse struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Recurring   bool   `json:"recurring"`
}

type recurringGroupResponse struct {
	Name              string `json:"name"`
	Category          string `json:"category"`
	AvgAmount         string `json:"avg_amount"`
	MonthCount        int    `json:"month_count"`
	TypicalDayOfMonth int    `json:"typical_day_of_month"`
}

func toPersonalResponse(e core.PersonalExpense, recurring bool) personalExpenseResponse {
	return personalExpenseResponse{
		ID:          e.ID,
		Category:    e.Category,
		Vendor:      e.Vendor,
		Description: e.Description,
		Date:        e.Date.Format(dateLayout),
		Amount:      e.Amount.String(),
		Recurring:   recurring,
	}
}

// handleListPersonalExpenses returns the caller's ledger newest first, each
// entry annotated with whether it belongs to a detected recurring pattern.
func (s *Server) handleListPersonalExpenses(w http.ResponseWriter, r *http.Request) {
	uid := auth.GetUserID(r.Context())

	expenses, err := s.personal.ListExpenses(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.personal.Recurring(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]personalExpenseResponse, len(expenses))
	for i, e := range expenses {
		_, recurring := res.RecurringIDs[e.ID]
		out[i] = toPersonalResponse(e, recurring)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPersonalExpense(w http.ResponseWriter, r *http.Request) {
	var req personalExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, ok := parseMoney(w, req.Amount)
	if !ok {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	e := core.PersonalExpense{
		Category:    req.Category,
		Vendor:      req.Vendor,
		Description: req.Description,
		Date:        date,
		Amount:      amount,
	}

	created, err := s.personal.AddExpense(r.Context(), auth.GetUserID(r.Context()), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonalResponse(created, false))
}

func (s *Server) handleDeletePersonalExpense(w http.ResponseWriter, r *http.Request) {
	err := s.personal.DeleteExpense(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCaptureExpense runs free-form text through the parsing collaborator
// and stores the result.
func (s *Server) handleCaptureExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := s.personal.CaptureExpense(r.Context(), auth.GetUserID(r.Context()), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonalResponse(created, false))
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	s.metrics.recurringReads.Inc()

	res, err := s.personal.Recurring(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]recurringGroupResponse, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = recurringGroupResponse{
			Name:              g.Name,
			Category:          g.Category,
			AvgAmount:         g.AvgAmount.String(),
			MonthCount:        g.MonthCount,
			TypicalDayOfMonth: g.TypicalDayOfMonth,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
