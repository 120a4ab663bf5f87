package http

import (
	"context"
	"errors"
	"net/http"

	"accountbook/internal/core"
	applog "accountbook/internal/log"
	"accountbook/internal/services"
)

// mutationResult is returned by every ledger and budget write so the
// client can redraw alerts without a second call.
type mutationResult struct {
	Entry  *core.Entry  `json:"entry,omitempty"`
	Budget *core.Budget `json:"budget,omitempty"`
	Alerts []core.Alert `json:"alerts"`
}

// afterMutation recomputes the owner's dashboard and returns its alerts.
// The write already succeeded, so a failed refresh is only logged.
func (s *Server) afterMutation(ctx context.Context, owner string) []core.Alert {
	d, err := s.dashboards.Refresh(ctx, owner)
	if err != nil && !errors.Is(err, services.ErrSuperseded) {
		applog.FromContext(ctx).WarnContext(ctx, "Dashboard refresh after write failed",
			applog.FieldOwnerID, owner, applog.FieldError, err)
		return []core.Alert{}
	}
	if d.Alerts == nil {
		return []core.Alert{}
	}
	return d.Alerts
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	f, err := ParseEntryFilter(r.URL.Query())
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	entries, err := s.ledger.ListEntries(ctx, OwnerFromContext(ctx), f)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}

	var totals core.Totals
	for _, e := range entries {
		if e.Type == core.Income {
			totals.Income = totals.Income.Add(e.Amount)
		} else {
			totals.Expense = totals.Expense.Add(e.Amount)
		}
	}
	NewResponse().JSON(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"totals":  totals,
	}).Write(w)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	e, err := s.ledger.GetEntry(ctx, OwnerFromContext(ctx), r.PathValue("id"))
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	owner := OwnerFromContext(ctx)
	e, err := s.ledger.CreateEntry(ctx, owner, body.EntryInput())
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).
		Header("Location", "/api/entries/"+e.ID).
		JSON(mutationResult{Entry: &e, Alerts: s.afterMutation(ctx, owner)}).
		Write(w)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	owner := OwnerFromContext(ctx)
	e, err := s.ledger.UpdateEntry(ctx, owner, r.PathValue("id"), body.EntryInput())
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(mutationResult{Entry: &e, Alerts: s.afterMutation(ctx, owner)}).Write(w)
}

// handleDeleteEntry requires confirm=true, the API form of the delete
// confirmation dialog.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := OwnerFromContext(ctx)
	if err := s.ledger.DeleteEntry(ctx, owner, r.PathValue("id"), queryBool(r, "confirm")); err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(mutationResult{Alerts: s.afterMutation(ctx, owner)}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	used, err := s.ledger.Categories(ctx, OwnerFromContext(ctx))
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	custom := make([]string, 0)
	for _, c := range used {
		if !core.IsPredefined(c) {
			custom = append(custom, c)
		}
	}
	NewResponse().JSON(map[string]interface{}{
		"filter":  used,
		"custom":  custom,
		"expense": core.ExpenseCategories,
		"income":  core.IncomeCategories,
		"other":   core.OtherCategory,
	}).Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	statuses, err := s.budgets.Statuses(ctx, OwnerFromContext(ctx))
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(map[string]interface{}{
		"month":   s.budgets.CurrentMonth(),
		"budgets": statuses,
	}).Write(w)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	owner := OwnerFromContext(ctx)
	b, err := s.budgets.UpsertBudget(ctx, owner, body.Get("category"), body.Get("customCategory"), body.Get("amount"))
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(mutationResult{Budget: &b, Alerts: s.afterMutation(ctx, owner)}).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := OwnerFromContext(ctx)
	if err := s.budgets.DeleteBudget(ctx, owner, r.PathValue("category")); err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(mutationResult{Alerts: s.afterMutation(ctx, owner)}).Write(w)
}

// handleAlerts evaluates budgets against the current month, or against
// month when given.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	month, err := ParseMonthParam(r.URL.Query(), "month", s.budgets.CurrentMonth())
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	alerts, err := s.budgets.AlertsForMonth(ctx, OwnerFromContext(ctx), month)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(map[string]interface{}{"month": month, "alerts": alerts}).Write(w)
}
