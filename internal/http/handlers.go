package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"accountbook/internal/core"
	"accountbook/internal/export"
	applog "accountbook/internal/log"
	"accountbook/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	limits, threats, traffic := s.limiter.GetMetrics(), s.detector.GetMetrics(), s.tracer.GetMetrics()
	checks := map[string]interface{}{
		"rate_limiter": map[string]interface{}{
			"active_clients": limits.ClientCount,
			"rejected":       limits.Rejected,
		},
		"security": map[string]interface{}{
			"suspicious": threats.SuspiciousRequests,
			"blocked":    threats.BlockedRequests,
		},
		"requests": map[string]interface{}{
			"total":            traffic.TotalRequests,
			"last_duration_us": traffic.LastResponseTime,
		},
	}
	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
	} else {
		checks["store"] = "ok"
	}

	NewResponse().Status(code).JSON(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleDashboard refreshes the owner's dashboard. When a newer refresh
// overtakes this one, the newest committed view is served instead.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()
	owner := OwnerFromContext(ctx)

	d, err := s.dashboards.Refresh(ctx, owner)
	if errors.Is(err, services.ErrSuperseded) {
		if current, ok := s.dashboards.Current(owner); ok {
			d = current
		}
		err = nil
	}
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(d).Write(w)
}

func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	month, err := ParseMonthParam(r.URL.Query(), "month", s.budgets.CurrentMonth())
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	report, err := s.reports.MonthReport(ctx, OwnerFromContext(ctx), month)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(report).Write(w)
}

// handleCompare compares months a and b. a defaults to the current month
// and b to the month before a.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	q := r.URL.Query()
	a, err := ParseMonthParam(q, "a", s.budgets.CurrentMonth())
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	b, err := ParseMonthParam(q, "b", core.PreviousMonthKey(a))
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	cmp, err := s.reports.Compare(ctx, OwnerFromContext(ctx), a, b)
	if err != nil {
		ErrorResponse(ctx, err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(cmp).Write(w)
}

// handleExport downloads a month when month is given, otherwise the
// entries matching the list filter.
func (s *Server) handleExport(format services.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := readContext(r)
		defer cancel()
		owner := OwnerFromContext(ctx)
		q := r.URL.Query()

		var (
			dl  services.Download
			err error
		)
		if q.Get("month") != "" {
			var month string
			if month, err = ParseMonthParam(q, "month", ""); err == nil {
				dl, err = s.reports.ExportMonth(ctx, owner, month, format)
			}
		} else {
			var f core.EntryFilter
			if f, err = ParseEntryFilter(q); err == nil {
				dl, err = s.reports.ExportFiltered(ctx, owner, f, format)
			}
		}
		if err != nil {
			ErrorResponse(ctx, err, s.locale).Write(w)
			return
		}

		NewResponse().
			Header("Content-Disposition", export.ContentDisposition(dl.FileName)).
			Bytes(dl.ContentType, dl.Data).
			Write(w)
	}
}
