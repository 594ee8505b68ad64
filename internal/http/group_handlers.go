package http

import (
	"net/http"
	"time"

	"conti/internal/auth"
	"conti/internal/core"
	"conti/internal/ledger"
)

const dateLayout = "2006-01-02"

type memberPayload struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

type groupResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedBy string          `json:"created_by"`
	Members   []memberPayload `json:"members"`
	CreatedAt time.Time       `json:"created_at"`
}

type splitPayload struct {
	UID    string `json:"uid"`
	Amount string `json:"amount"`
}

type groupExpenseRequest struct {
	Description string         `json:"description"`
	Category    string         `json:"category"`
	PaidBy      string         `json:"paid_by"`
	Amount      string         `json:"amount"`
	Date        string         `json:"date"`
	Splits      []splitPayload `json:"splits"`
}

type groupExpenseResponse struct {
	ID          string         `json:"id"`
	GroupID     string         `json:"group_id"`
	Description string         `json:"description"`
	Category    string         `json:"category,omitempty"`
	PaidBy      string         `json:"paid_by"`
	Amount      string         `json:"amount"`
	Date        string         `json:"date"`
	Splits      []splitPayload `json:"splits"`
}

type settlementRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type settlementResponse struct {
	ID       string `json:"id"`
	GroupID  string `json:"group_id"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
	To       string `json:"to"`
	ToName   string `json:"to_name"`
	Amount   string `json:"amount"`
}

type debtResponse struct {
	Debtor       string `json:"debtor"`
	DebtorName   string `json:"debtor_name"`
	Creditor     string `json:"creditor"`
	CreditorName string `json:"creditor_name"`
	Amount       string `json:"amount"`
}

func toGroupResponse(g core.Group) groupResponse {
	members := make([]memberPayload, len(g.Members))
	for i, m := range g.Members {
		members[i] = memberPayload{UID: m.UID, DisplayName: m.DisplayName, Email: m.Email}
	}
	return groupResponse{
		ID:        g.ID,
		Name:      g.Name,
		CreatedBy: g.CreatedBy,
		Members:   members,
		CreatedAt: g.CreatedAt,
	}
}

func toExpenseResponse(e core.GroupExpense) groupExpenseResponse {
	splits := make([]splitPayload, len(e.Splits))
	for i, s := range e.Splits {
		splits[i] = splitPayload{UID: s.UID, Amount: s.Amount.String()}
	}
	return groupExpenseResponse{
		ID:          e.ID,
		GroupID:     e.GroupID,
		Description: e.Description,
		Category:    e.Category,
		PaidBy:      e.PaidBy,
		Amount:      e.Amount.String(),
		Date:        e.Date.Format(dateLayout),
		Splits:      splits,
	}
}

func toSettlementResponse(s core.Settlement) settlementResponse {
	return settlementResponse{
		ID:       s.ID,
		GroupID:  s.GroupID,
		From:     s.From,
		FromName: s.FromName,
		To:       s.To,
		ToName:   s.ToName,
		Amount:   s.Amount.String(),
	}
}

func toDebtResponses(debts []ledger.PairwiseDebt) []debtResponse {
	out := make([]debtResponse, len(debts))
	for i, d := range debts {
		out[i] = debtResponse{
			Debtor:       d.Debtor,
			DebtorName:   d.DebtorName,
			Creditor:     d.Creditor,
			CreditorName: d.CreditorName,
			Amount:       d.Amount.String(),
		}
	}
	return out
}

func parseMoney(w http.ResponseWriter, raw string) (core.Money, bool) {
	cents, err := core.ParseDecimalToCents(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount: " + raw})
		return core.Money{}, false
	}
	return core.Money{Cents: cents}, true
}

func parseDate(w http.ResponseWriter, raw string) (core.Date, bool) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date, want YYYY-MM-DD: " + raw})
		return core.Date{}, false
	}
	return core.Date{Time: t}, true
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	creator := core.Member{
		UID:         auth.GetUserID(r.Context()),
		DisplayName: auth.GetDisplayName(r.Context()),
		Email:       auth.GetEmail(r.Context()),
	}

	g, err := s.groups.CreateGroup(r.Context(), req.Name, creator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(g))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListGroups(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]groupResponse, len(groups))
	for i, g := range groups {
		out[i] = toGroupResponse(g)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.groups.GetGroup(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req memberPayload
	if !decodeJSON(w, r, &req) {
		return
	}

	m := core.Member{UID: req.UID, DisplayName: req.DisplayName, Email: req.Email}
	if err := s.groups.AddMember(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"), m); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroupExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.groups.ListExpenses(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]groupExpenseResponse, len(expenses))
	for i, e := range expenses {
		out[i] = toExpenseResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddGroupExpense(w http.ResponseWriter, r *http.Request) {
	var req groupExpenseRequest
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

	splits := make([]core.Split, len(req.Splits))
	for i, sp := range req.Splits {
		m, ok := parseMoney(w, sp.Amount)
		if !ok {
			return
		}
		splits[i] = core.Split{UID: sp.UID, Amount: m}
	}

	e := core.GroupExpense{
		GroupID:     r.PathValue("id"),
		Description: req.Description,
		Category:    req.Category,
		PaidBy:      req.PaidBy,
		Amount:      amount,
		Date:        date,
		Splits:      splits,
	}

	created, err := s.groups.AddExpense(r.Context(), auth.GetUserID(r.Context()), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(created))
}

func (s *Server) handleDeleteGroupExpense(w http.ResponseWriter, r *http.Request) {
	err := s.groups.DeleteExpense(r.Context(),
		auth.GetUserID(r.Context()), r.PathValue("id"), r.PathValue("expenseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.groups.ListSettlements(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]settlementResponse, len(settlements))
	for i, st := range settlements {
		out[i] = toSettlementResponse(st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, ok := parseMoney(w, req.Amount)
	if !ok {
		return
	}

	st := core.Settlement{
		GroupID: r.PathValue("id"),
		From:    req.From,
		To:      req.To,
		Amount:  amount,
	}

	created, err := s.groups.AddSettlement(r.Context(), auth.GetUserID(r.Context()), st)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementResponse(created))
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	s.metrics.balanceReads.Inc()

	debts, err := s.groups.Balances(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtResponses(debts))
}
