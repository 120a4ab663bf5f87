package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountbook/internal/auth"
	"accountbook/internal/core"
	"accountbook/internal/export"
	applog "accountbook/internal/log"
	"accountbook/internal/services"
	"accountbook/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	srv    *Server
	store  *memory.Store
	tokens *auth.TokenIssuer
	views  *services.ViewRefresher[services.Dashboard]
}

func newTestEnv(t *testing.T, tweaks ...func(*Options)) *testEnv {
	t.Helper()
	store := memory.New()
	logger := applog.Discard()
	tokens := auth.NewTokenIssuer("test-secret-0123456789", time.Hour)
	provider := auth.NewService(auth.Options{Users: store, Tokens: tokens, Logger: logger})

	budgets := services.NewBudgetService(store, core.ExceededOnly(), nil, logger).WithClock(clock)
	reports := services.NewReportService(store, budgets, time.Minute, logger).WithClock(clock)
	ledger := services.NewLedgerService(store, nil, logger, reports).WithClock(clock)
	views := services.NewViewRefresher(reports.Dashboard)

	opts := Options{
		Addr:              ":0",
		Auth:              provider,
		Ledger:            ledger,
		Budgets:           budgets,
		Reports:           reports,
		Dashboards:        views,
		Store:             store,
		Locale:            auth.LocaleKorean,
		RequestsPerMinute: 1000,
		Logger:            logger,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, tokens: tokens, views: views}
}

func (e *testEnv) token(t *testing.T, owner string) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(owner, owner+"@example.com")
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "203.0.113.7:5555"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	env.srv.store = downStore{}
	rr = env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/entries", "/api/budgets", "/api/dashboard", "/api/export/csv"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr := env.do(t, http.MethodGet, "/api/entries", "not-a-jwt", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decode[ErrorBody](t, rr)
	assert.Equal(t, auth.CodeInvalidToken, body.Code)
	assert.Equal(t, "로그인이 필요합니다.", body.Error)
}

func TestEntryLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "owner-1")

	rr := env.do(t, http.MethodPost, "/api/entries", tok,
		`{"category":"외식","amount":12000,"description":"점심","paymentMethod":"카드"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[mutationResult](t, rr)
	require.NotNil(t, created.Entry)
	assert.Equal(t, "2024-03-15", created.Entry.Date.String())
	assert.Equal(t, int64(1200000), created.Entry.Amount.Cents)
	assert.Equal(t, "/api/entries/"+created.Entry.ID, rr.Header().Get("Location"))
	assert.NotNil(t, created.Alerts)

	rr = env.do(t, http.MethodPut, "/api/entries/"+created.Entry.ID, tok,
		`{"category":"기타","customCategory":"선물","amount":"5000","date":"2024-03-10","type":"expense"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[mutationResult](t, rr)
	assert.Equal(t, "선물", updated.Entry.Category)
	assert.Equal(t, core.DefaultPaymentMethod, updated.Entry.PaymentMethod)

	rr = env.do(t, http.MethodGet, "/api/entries?category="+url.QueryEscape("선물"), tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Entries []core.Entry `json:"entries"`
		Count   int          `json:"count"`
		Totals  core.Totals  `json:"totals"`
	}](t, rr)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, int64(500000), list.Totals.Expense.Cents)

	rr = env.do(t, http.MethodDelete, "/api/entries/"+created.Entry.ID, tok, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code, "delete without confirmation")

	rr = env.do(t, http.MethodDelete, "/api/entries/"+created.Entry.ID+"?confirm=true", tok, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/entries/"+created.Entry.ID, tok, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateEntryRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "owner-1")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"negative amount", `{"category":"외식","amount":-1}`, "amount"},
		{"non-numeric amount", `{"category":"외식","amount":"abc"}`, "amount"},
		{"empty custom category", `{"category":"기타","customCategory":"  ","amount":1}`, "category"},
		{"bad date", `{"category":"외식","amount":1,"date":"2024-02-30"}`, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/entries", tok, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.field, decode[ErrorBody](t, rr).Field)
		})
	}

	rr := env.do(t, http.MethodGet, "/api/entries", tok, "")
	assert.Equal(t, 0, decode[struct {
		Count int `json:"count"`
	}](t, rr).Count, "nothing persisted")
}

func TestOwnersAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.token(t, "alice"), env.token(t, "bob")

	rr := env.do(t, http.MethodPost, "/api/entries", alice, `{"category":"외식","amount":1000}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[mutationResult](t, rr).Entry.ID

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/entries/"+id, bob, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/entries/"+id+"?confirm=true", bob, "").Code)
}

func TestBudgetAlertFlow(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "owner-1")

	rr := env.do(t, http.MethodPut, "/api/budgets", tok, `{"category":"그로서리","amount":40000}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, decode[mutationResult](t, rr).Alerts)

	rr = env.do(t, http.MethodPost, "/api/entries", tok, `{"category":"그로서리","amount":45000,"date":"2024-03-02"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	alerts := decode[mutationResult](t, rr).Alerts
	require.Len(t, alerts, 1)
	assert.Equal(t, core.AlertExceeded, alerts[0].Kind)
	assert.Equal(t, "그로서리", alerts[0].Category)
	assert.Equal(t, int64(4500000), alerts[0].Spent.Cents)
	assert.Equal(t, int64(4000000), alerts[0].Limit.Cents)

	rr = env.do(t, http.MethodGet, "/api/alerts", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[struct {
		Alerts []core.Alert `json:"alerts"`
	}](t, rr).Alerts, 1)

	rr = env.do(t, http.MethodGet, "/api/budgets", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	statuses := decode[struct {
		Month   string              `json:"month"`
		Budgets []core.BudgetStatus `json:"budgets"`
	}](t, rr)
	assert.Equal(t, "2024-03", statuses.Month)
	require.Len(t, statuses.Budgets, 1)
	assert.Equal(t, 112.5, statuses.Budgets[0].Progress)

	rr = env.do(t, http.MethodDelete, "/api/budgets/"+url.PathEscape("그로서리"), tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[mutationResult](t, rr).Alerts)

	rr = env.do(t, http.MethodDelete, "/api/budgets/"+url.PathEscape("없음"), tok, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboardAndReports(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "owner-1")

	for _, body := range []string{
		`{"category":"외식","amount":30000,"date":"2024-03-05"}`,
		`{"category":"급여","type":"income","amount":2000000,"date":"2024-03-01"}`,
		`{"category":"외식","amount":10000,"date":"2024-02-10"}`,
	} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/entries", tok, body).Code)
	}

	rr := env.do(t, http.MethodGet, "/api/dashboard", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	d := decode[services.Dashboard](t, rr)
	assert.Equal(t, "2024-03", d.Month)
	assert.Equal(t, int64(3000000), d.Expense.Cents)
	assert.Equal(t, int64(200000000), d.Income.Cents)
	assert.Equal(t, int64(1000000), d.PreviousExpense.Cents)

	current, ok := env.views.Current("owner-1")
	require.True(t, ok)
	assert.Equal(t, d.Expense, current.Expense)

	rr = env.do(t, http.MethodGet, "/api/reports/month?year=2024&month=2", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[services.MonthReport](t, rr)
	assert.Equal(t, "2024-02", report.Month)
	assert.Len(t, report.Entries, 1)

	rr = env.do(t, http.MethodGet, "/api/reports/compare", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	cmp := decode[core.Comparison](t, rr)
	assert.Equal(t, "2024-03", cmp.MonthA)
	assert.Equal(t, "2024-02", cmp.MonthB)
	require.NotEmpty(t, cmp.Rows)
	assert.Equal(t, int64(2000000), cmp.Rows[0].Diff.Cents)

	rr = env.do(t, http.MethodGet, "/api/reports/compare?a=2024-13", tok, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportDownloads(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "owner-1")
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/entries", tok, `{"category":"외식","amount":1234.5,"description":"a, \"b\""}`).Code)

	rr := env.do(t, http.MethodGet, "/api/export/csv?month=2024-03", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, export.ContentDisposition("가계부_2024-03.csv"), rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "\ufeff"), "CSV starts with a BOM")
	rows, err := export.ParseCSV(rr.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1], `a, "b"`)

	rr = env.do(t, http.MethodGet, "/api/export/xlsx", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, export.ContentDisposition("가계부_전체.xlsx"), rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"), "xlsx is a zip container")

	rr = env.do(t, http.MethodGet, "/api/export/csv?minAmount=abc", tok, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "owner-1")
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/entries", tok, `{"category":"other","customCategory":"교육","amount":1}`).Code)

	rr := env.do(t, http.MethodGet, "/api/categories", tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	cats := decode[struct {
		Filter  []string `json:"filter"`
		Custom  []string `json:"custom"`
		Expense []string `json:"expense"`
		Other   string   `json:"other"`
	}](t, rr)
	assert.Contains(t, cats.Filter, "교육")
	assert.Contains(t, cats.Filter, "외식")
	assert.Equal(t, []string{"교육"}, cats.Custom)
	assert.Equal(t, core.ExpenseCategories, cats.Expense)
	assert.Equal(t, core.OtherCategory, cats.Other)
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"kim@example.com","password":"secret1","confirmPassword":"secret2"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "비밀번호가 일치하지 않습니다.", decode[ErrorBody](t, rr).Error)

	rr = env.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"kim@example.com","password":"secret1","confirmPassword":"secret1"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"kim@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"kim@example.com","password":"wrong!!"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, auth.CodeWrongPassword, decode[ErrorBody](t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"kim@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	sess := decode[auth.Session](t, rr)
	require.NotEmpty(t, sess.Token)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/entries", sess.Token, "").Code)

	rr = env.do(t, http.MethodPost, "/api/auth/signout", sess.Token, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/entries", sess.Token, "").Code)

	rr = env.do(t, http.MethodGet, "/api/auth/google/start", "", "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code, "no federator configured")

	rr = env.do(t, http.MethodPost, "/api/auth/password-reset", "", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", `{"token":"bogus","newPassword":"secret9"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RequestsPerMinute = 2 })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/entries", "", "").Code)
	}
	rr := env.do(t, http.MethodGet, "/api/entries", "", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, auth.CodeTooManyRequests, decode[ErrorBody](t, rr).Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", "").Code, "probes are not limited")
}

func TestProbeRequestsAreRefused(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/.env", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, int64(1), env.srv.detector.GetMetrics().BlockedRequests)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AllowedOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/entries", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestReadyReportsMiddlewareCounters(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/wp-admin/", "", "")

	rr := env.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Checks struct {
			Security struct {
				Blocked int64 `json:"blocked"`
			} `json:"security"`
			Requests struct {
				Total int64 `json:"total"`
			} `json:"requests"`
		} `json:"checks"`
	}](t, rr)
	assert.Equal(t, int64(1), body.Checks.Security.Blocked)
	assert.GreaterOrEqual(t, body.Checks.Requests.Total, int64(1))
}
