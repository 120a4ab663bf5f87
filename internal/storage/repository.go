package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"accountbook/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists entries, budgets and users in a single SQLite
// file. Dates are ISO text and timestamps are unix nanoseconds.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) InsertEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, string(e.Type), e.Date.String(), e.Month, e.Description,
		e.Category, e.Amount.Cents, e.PaymentMethod, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	slog.DebugContext(ctx, "Entry saved to SQLite", "id", e.ID, "month", e.Month)
	return nil
}

func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET type = ?, date = ?, month = ?, description = ?, category = ?,
		 amount_cents = ?, payment_method = ?
		 WHERE id = ? AND owner_id = ?`,
		string(e.Type), e.Date.String(), e.Month, e.Description, e.Category,
		e.Amount.Cents, e.PaymentMethod, e.ID, e.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return expectOne(res, entryNotFound(e.ID))
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return expectOne(res, entryNotFound(id))
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, ownerID, id string) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, entryNotFound(id)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.Entry, error) {
	where, args := entryWhere(ownerID, f, questionMark, func(d core.Date) any { return d.String() })
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE `+where+` `+entryOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return filterDescription(entries, f), nil
}

func (r *SQLiteRepository) EntryCategories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM entries WHERE owner_id = ? ORDER BY category`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (owner_id, category, amount_cents, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_id, category) DO UPDATE SET amount_cents = excluded.amount_cents, updated_at = excluded.updated_at`,
		b.OwnerID, b.Category, b.Amount.Cents, b.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, ownerID, category string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE owner_id = ? AND category = ?`, ownerID, category)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return expectOne(res, budgetNotFound(category))
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner_id, category, amount_cents, updated_at FROM budgets WHERE owner_id = ? ORDER BY category`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b       core.Budget
			updated int64
		)
		if err := rows.Scan(&b.OwnerID, &b.Category, &b.Amount.Cents, &updated); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, provider, created_at, last_login) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, normalizeEmail(u.Email), u.PasswordHash, u.Provider, u.CreatedAt.UnixNano(), unixOrZero(u.LastLogin),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	email = normalizeEmail(email)
	return r.user(ctx, `WHERE email = ?`, email, email)
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.user(ctx, `WHERE id = ?`, id, id)
}

func (r *SQLiteRepository) user(ctx context.Context, where string, arg any, key string) (core.User, error) {
	var (
		u              core.User
		created, login int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, provider, created_at, last_login FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Provider, &created, &login)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, userNotFound(key)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	if login != 0 {
		u.LastLogin = time.Unix(0, login).UTC()
	}
	return u, nil
}

func (r *SQLiteRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res, userNotFound(id))
}

func (r *SQLiteRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return expectOne(res, userNotFound(id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(s rowScanner) (core.Entry, error) {
	var (
		e       core.Entry
		typ     string
		date    string
		created int64
	)
	if err := s.Scan(&e.ID, &e.OwnerID, &typ, &date, &e.Month, &e.Description,
		&e.Category, &e.Amount.Cents, &e.PaymentMethod, &created); err != nil {
		return core.Entry{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Entry{}, err
	}
	e.Type = core.EntryType(typ)
	e.Date = d
	e.CreatedAt = time.Unix(0, created).UTC()
	return e, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
