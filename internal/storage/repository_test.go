package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountbook/internal/core"
	"accountbook/internal/storage"
	"accountbook/internal/storage/memory"
)

func repositories(t *testing.T) map[string]storage.Repository {
	t.Helper()
	repos := map[string]storage.Repository{"memory": memory.New()}

	sqliteRepo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.Close() })
	repos["sqlite"] = sqliteRepo

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		pg, err := storage.NewPostgresRepository(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		repos["postgres"] = pg
	}
	return repos
}

func newEntry(owner, date string, typ core.EntryType, category string, units int64, created time.Time) core.Entry {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Entry{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		Type:          typ,
		Date:          d,
		Month:         d.MonthKey(),
		Category:      category,
		Amount:        core.FromUnits(units),
		PaymentMethod: core.DefaultPaymentMethod,
		CreatedAt:     created.UTC(),
	}
}

func TestRepositories(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("entries", func(t *testing.T) { testEntries(t, repo) })
			t.Run("budgets", func(t *testing.T) { testBudgets(t, repo) })
			t.Run("users", func(t *testing.T) { testUsers(t, repo) })
		})
	}
}

func testEntries(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	owner, other := uuid.NewString(), uuid.NewString()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	fixtures := []core.Entry{
		newEntry(owner, "2024-05-31", core.Expense, "Food", 10, base),
		newEntry(owner, "2024-06-01", core.Expense, "Food", 20, base.Add(time.Minute)),
		newEntry(owner, "2024-06-15", core.Income, "Food", 30, base.Add(2*time.Minute)),
		newEntry(owner, "2024-06-30", core.Expense, "Food", 40, base.Add(3*time.Minute)),
		newEntry(owner, "2024-06-20", core.Expense, "Transport", 50, base.Add(4*time.Minute)),
		newEntry(other, "2024-06-10", core.Expense, "Food", 60, base.Add(5*time.Minute)),
	}
	fixtures[3].Description = "Weekly GROCERIES run"
	for _, e := range fixtures {
		require.NoError(t, repo.InsertEntry(ctx, e))
	}

	got, err := repo.ListEntries(ctx, owner, core.EntryFilter{
		From:     core.NewDate(2024, 6, 1),
		To:       core.NewDate(2024, 6, 30),
		Category: "Food",
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, fixtures[3].ID, got[0].ID)
	assert.Equal(t, fixtures[2].ID, got[1].ID)
	assert.Equal(t, fixtures[1].ID, got[2].ID)
	for _, e := range got {
		assert.Equal(t, "Food", e.Category)
		assert.Equal(t, e.Date.MonthKey(), e.Month)
	}

	got, err = repo.ListEntries(ctx, owner, core.EntryFilter{Description: "groceries"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fixtures[3].ID, got[0].ID)

	lo := core.FromUnits(20)
	hi := core.FromUnits(40)
	got, err = repo.ListEntries(ctx, owner, core.EntryFilter{MinAmount: &lo, MaxAmount: &hi, Type: core.Expense})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	loaded, err := repo.GetEntry(ctx, owner, fixtures[0].ID)
	require.NoError(t, err)
	assert.Equal(t, fixtures[0].Date.String(), loaded.Date.String())
	assert.Equal(t, fixtures[0].Amount, loaded.Amount)
	assert.True(t, fixtures[0].CreatedAt.Equal(loaded.CreatedAt))

	// owner scoping
	_, err = repo.GetEntry(ctx, other, fixtures[0].ID)
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(repo.DeleteEntry(ctx, other, fixtures[0].ID)))

	moved := loaded
	moved.Date = core.NewDate(2024, 7, 2)
	moved.Month = moved.Date.MonthKey()
	moved.Category = "Transport"
	require.NoError(t, repo.UpdateEntry(ctx, moved))
	loaded, err = repo.GetEntry(ctx, owner, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-07", loaded.Month)
	assert.Equal(t, "Transport", loaded.Category)

	bad := moved
	bad.Month = "2024-01"
	assert.True(t, core.IsValidation(repo.UpdateEntry(ctx, bad)))

	missing := moved
	missing.ID = uuid.NewString()
	assert.True(t, core.IsNotFound(repo.UpdateEntry(ctx, missing)))

	cats, err := repo.EntryCategories(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food", "Transport"}, cats)

	require.NoError(t, repo.DeleteEntry(ctx, owner, moved.ID))
	assert.True(t, core.IsNotFound(repo.DeleteEntry(ctx, owner, moved.ID)))
}

func testBudgets(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	owner := uuid.NewString()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertBudget(ctx, core.Budget{OwnerID: owner, Category: "외식", Amount: core.FromUnits(100000), UpdatedAt: now}))
	require.NoError(t, repo.UpsertBudget(ctx, core.Budget{OwnerID: owner, Category: "그로서리", Amount: core.FromUnits(200000), UpdatedAt: now}))
	require.NoError(t, repo.UpsertBudget(ctx, core.Budget{OwnerID: owner, Category: "외식", Amount: core.FromUnits(150000), UpdatedAt: now.Add(time.Hour)}))

	budgets, err := repo.ListBudgets(ctx, owner)
	require.NoError(t, err)
	require.Len(t, budgets, 2)
	assert.Equal(t, "그로서리", budgets[0].Category)
	assert.Equal(t, "외식", budgets[1].Category)
	assert.Equal(t, core.FromUnits(150000), budgets[1].Amount)

	assert.True(t, core.IsValidation(repo.UpsertBudget(ctx, core.Budget{OwnerID: owner, Category: "x"})))

	require.NoError(t, repo.DeleteBudget(ctx, owner, "외식"))
	assert.True(t, core.IsNotFound(repo.DeleteBudget(ctx, owner, "외식")))

	others, err := repo.ListBudgets(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, others)
}

func testUsers(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	email := uuid.NewString() + "@Example.com"
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		Provider:     core.ProviderPassword,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateUser(ctx, u))
	assert.ErrorIs(t, repo.CreateUser(ctx, core.User{ID: uuid.NewString(), Email: email, Provider: core.ProviderPassword}), storage.ErrEmailTaken)

	got, err := repo.UserByEmail(ctx, "  "+email+" ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, got.LastLogin.IsZero())

	login := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.TouchLogin(ctx, u.ID, login))
	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "hash2"))
	got, err = repo.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash2", got.PasswordHash)
	assert.True(t, login.Equal(got.LastLogin))

	_, err = repo.UserByEmail(ctx, "nobody@example.com")
	assert.True(t, core.IsNotFound(err))
}
