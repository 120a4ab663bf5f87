package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"accountbook/internal/core"
)

const pgUniqueViolation = "23505"

// PostgresRepository is the pgx-backed store used by the postgres backend.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository migrates the schema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	if err := RunPostgresMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) InsertEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO entries (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OwnerID, string(e.Type), e.Date.Time, e.Month, e.Description,
		e.Category, e.Amount.Cents, e.PaymentMethod, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE entries SET type = $1, date = $2, month = $3, description = $4, category = $5,
		 amount_cents = $6, payment_method = $7
		 WHERE id = $8 AND owner_id = $9`,
		string(e.Type), e.Date.Time, e.Month, e.Description, e.Category,
		e.Amount.Cents, e.PaymentMethod, e.ID, e.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entryNotFound(e.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteEntry(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entryNotFound(id)
	}
	return nil
}

func (r *PostgresRepository) GetEntry(ctx context.Context, ownerID, id string) (core.Entry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	e, err := scanPgEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Entry{}, entryNotFound(id)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.Entry, error) {
	where, args := entryWhere(ownerID, f, dollar, func(d core.Date) any { return d.Time })
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE `+where+` `+entryOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanPgEntry(rows)
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

func (r *PostgresRepository) EntryCategories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT category FROM entries WHERE owner_id = $1 ORDER BY category`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO budgets (owner_id, category, amount_cents, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner_id, category) DO UPDATE SET amount_cents = EXCLUDED.amount_cents, updated_at = EXCLUDED.updated_at`,
		b.OwnerID, b.Category, b.Amount.Cents, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteBudget(ctx context.Context, ownerID, category string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM budgets WHERE owner_id = $1 AND category = $2`, ownerID, category)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return budgetNotFound(category)
	}
	return nil
}

func (r *PostgresRepository) ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT owner_id, category, amount_cents, updated_at FROM budgets WHERE owner_id = $1 ORDER BY category`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.OwnerID, &b.Category, &b.Amount.Cents, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u core.User) error {
	var lastLogin *time.Time
	if !u.LastLogin.IsZero() {
		lastLogin = &u.LastLogin
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, provider, created_at, last_login) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, normalizeEmail(u.Email), u.PasswordHash, u.Provider, u.CreatedAt, lastLogin,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	email = normalizeEmail(email)
	return r.user(ctx, `WHERE email = $1`, email)
}

func (r *PostgresRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.user(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) user(ctx context.Context, where, key string) (core.User, error) {
	var (
		u     core.User
		login *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, provider, created_at, last_login FROM users `+where, key,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Provider, &u.CreatedAt, &login)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, userNotFound(key)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	if login != nil {
		u.LastLogin = *login
	}
	return u, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(id)
	}
	return nil
}

func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(id)
	}
	return nil
}

func scanPgEntry(s pgx.Row) (core.Entry, error) {
	var (
		e    core.Entry
		typ  string
		date time.Time
	)
	if err := s.Scan(&e.ID, &e.OwnerID, &typ, &date, &e.Month, &e.Description,
		&e.Category, &e.Amount.Cents, &e.PaymentMethod, &e.CreatedAt); err != nil {
		return core.Entry{}, err
	}
	y, m, d := date.Date()
	e.Type = core.EntryType(typ)
	e.Date = core.NewDate(y, int(m), d)
	return e, nil
}
