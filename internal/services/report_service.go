package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"accountbook/internal/cache"
	"accountbook/internal/core"
	"accountbook/internal/export"
	"accountbook/internal/log"
	"accountbook/internal/storage"
)

// Dashboard is the landing view: this month against last month plus alerts.
type Dashboard struct {
	Month           string                `json:"month"`
	Income          core.Money            `json:"income"`
	Expense         core.Money            `json:"expense"`
	PreviousExpense core.Money            `json:"previousExpense"`
	Net             core.Money            `json:"net"`
	ByCategory      []core.CategoryAmount `json:"byCategory"`
	Alerts          []core.Alert          `json:"alerts"`
}

// MonthReport is the monthly page: summary plus the month's entries.
type MonthReport struct {
	core.MonthOverview
	Entries []core.Entry `json:"entries"`
}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Download is a rendered export file.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ReportService serves read-only views and exports. Month summaries are
// cached per owner and invalidated on every mutation of that owner.
type ReportService struct {
	entries   storage.EntryRepository
	budgets   *BudgetService
	summaries *cache.LRUCache[core.MonthOverview]
	logger    *log.Logger
	now       func() time.Time

	// loads tracks owners with a summary load in flight. A load that sees
	// its owner invalidated is returned but never cached.
	mu    sync.Mutex
	loads map[string]*summaryLoad
}

type summaryLoad struct {
	gen      uint64
	inflight int
}

var _ Invalidator = (*ReportService)(nil)

func NewReportService(entries storage.EntryRepository, budgets *BudgetService, cacheTTL time.Duration, logger *log.Logger) *ReportService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ReportService{
		entries:   entries,
		budgets:   budgets,
		summaries: cache.NewLRUCache[core.MonthOverview](1000, cacheTTL),
		logger:    logger.WithComponent(log.ComponentReport),
		now:       time.Now,
		loads:     make(map[string]*summaryLoad),
	}
}

func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = defaultClock(now)
	return s
}

// SummaryCache exposes the summary cache for periodic sweeping.
func (s *ReportService) SummaryCache() cache.Cleaner { return s.summaries }

// Invalidate drops every cached summary of owner.
func (s *ReportService) Invalidate(ownerID string) {
	s.mu.Lock()
	if l, ok := s.loads[ownerID]; ok {
		l.gen++
	}
	n := s.summaries.DeletePrefix(summaryKey(ownerID, ""))
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("Invalidated month summaries", log.FieldOwnerID, ownerID, "count", n)
	}
}

// MonthSummary returns the totals, category breakdown and daily series of
// month.
func (s *ReportService) MonthSummary(ctx context.Context, ownerID, month string) (core.MonthOverview, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.MonthOverview{}, err
	}
	key := summaryKey(ownerID, month)
	if cached, ok := s.summaries.Get(key); ok {
		return cached, nil
	}
	l, gen := s.beginLoad(ownerID)
	entries, err := s.monthEntries(ctx, ownerID, month)
	if err != nil {
		s.endLoad(ownerID, l, gen, "", nil)
		return core.MonthOverview{}, err
	}
	overview := core.Overview(entries, month)
	s.endLoad(ownerID, l, gen, key, &overview)
	return overview, nil
}

func (s *ReportService) beginLoad(ownerID string) (*summaryLoad, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loads[ownerID]
	if !ok {
		l = &summaryLoad{}
		s.loads[ownerID] = l
	}
	l.inflight++
	return l, l.gen
}

// endLoad caches overview unless the owner was invalidated since beginLoad.
func (s *ReportService) endLoad(ownerID string, l *summaryLoad, gen uint64, key string, overview *core.MonthOverview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.inflight--; l.inflight == 0 {
		delete(s.loads, ownerID)
	}
	if overview == nil {
		return
	}
	if l.gen != gen {
		s.logger.Debug("Dropped stale month summary", log.FieldOwnerID, ownerID, "key", key)
		return
	}
	s.summaries.Set(key, *overview)
}

// Dashboard loads the current and previous month summaries and the budget
// alerts concurrently.
func (s *ReportService) Dashboard(ctx context.Context, ownerID string) (Dashboard, error) {
	month := core.CurrentMonthKey(s.now())
	prev := core.PreviousMonthKey(month)

	var (
		current, previous core.MonthOverview
		alerts            []core.Alert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.MonthSummary(gctx, ownerID, month)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.MonthSummary(gctx, ownerID, prev)
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = s.budgets.AlertsForMonth(gctx, ownerID, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Month:           month,
		Income:          current.Totals.Income,
		Expense:         current.Totals.Expense,
		PreviousExpense: previous.Totals.Expense,
		Net:             current.Net,
		ByCategory:      current.ByCategory,
		Alerts:          alerts,
	}, nil
}

// MonthReport returns the summary of month with its entries oldest first.
func (s *ReportService) MonthReport(ctx context.Context, ownerID, month string) (MonthReport, error) {
	if err := requireOwner(ownerID); err != nil {
		return MonthReport{}, err
	}
	entries, err := s.monthEntries(ctx, ownerID, month)
	if err != nil {
		return MonthReport{}, err
	}
	core.SortOldestFirst(entries)
	return MonthReport{MonthOverview: core.Overview(entries, month), Entries: entries}, nil
}

// Compare returns the per-category expense difference of months a and b.
func (s *ReportService) Compare(ctx context.Context, ownerID, a, b string) (core.Comparison, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Comparison{}, err
	}
	if a == b {
		entries, err := s.monthEntries(ctx, ownerID, a)
		if err != nil {
			return core.Comparison{}, err
		}
		return core.CompareMonths(entries, a, b), nil
	}

	var ea, eb []core.Entry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ea, err = s.monthEntries(gctx, ownerID, a)
		return err
	})
	g.Go(func() error {
		var err error
		eb, err = s.monthEntries(gctx, ownerID, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Comparison{}, err
	}
	return core.CompareMonths(append(ea, eb...), a, b), nil
}

// ExportMonth renders the entries of one month in date order.
func (s *ReportService) ExportMonth(ctx context.Context, ownerID, month string, format Format) (Download, error) {
	if err := requireOwner(ownerID); err != nil {
		return Download{}, err
	}
	entries, err := s.monthEntries(ctx, ownerID, month)
	if err != nil {
		return Download{}, err
	}
	core.SortOldestFirst(entries)
	return s.render(ctx, ownerID, month, entries, format)
}

// ExportFiltered renders the list view as currently filtered, in list order.
func (s *ReportService) ExportFiltered(ctx context.Context, ownerID string, f core.EntryFilter, format Format) (Download, error) {
	if err := requireOwner(ownerID); err != nil {
		return Download{}, err
	}
	entries, err := s.entries.ListEntries(ctx, ownerID, f)
	if err != nil {
		return Download{}, core.Unavailable("list entries", err)
	}
	return s.render(ctx, ownerID, "", entries, format)
}

func (s *ReportService) render(ctx context.Context, ownerID, scope string, entries []core.Entry, format Format) (Download, error) {
	var (
		d   Download
		err error
	)
	switch format {
	case FormatCSV:
		d.ContentType = export.ContentTypeCSV
		d.Data, err = export.CSV(entries)
	case FormatXLSX:
		d.ContentType = export.ContentTypeXLSX
		d.Data, err = export.XLSX(entries)
	default:
		return Download{}, &core.ValidationError{Field: "format", Err: ErrUnknownFormat}
	}
	if err != nil {
		return Download{}, fmt.Errorf("render %s: %w", format, err)
	}
	d.FileName = export.FileName(scope, string(format))

	s.logger.InfoContext(ctx, "Export rendered",
		log.FieldOwnerID, ownerID,
		log.FieldOperation, log.OpExport,
		"format", format,
		"rows", len(entries))
	return d, nil
}

func (s *ReportService) monthEntries(ctx context.Context, ownerID, month string) ([]core.Entry, error) {
	f, err := monthBounds(month)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListEntries(ctx, ownerID, f)
	if err != nil {
		return nil, core.Unavailable("list entries", err)
	}
	return entries, nil
}

func summaryKey(ownerID, month string) string {
	return ownerID + "|" + month
}
