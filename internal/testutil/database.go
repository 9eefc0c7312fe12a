// Package testutil provides shared test helpers backed by a real, migrated
// SQLite database.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated database in a temporary directory.
// It automatically handles cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.MustCreateUser("user-1", 3)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "gigproof.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustCreateUser inserts a user with the given credit balance.
func (db *TestDB) MustCreateUser(id string, credits int) *model.User {
	db.t.Helper()

	user := &model.User{
		ID:        id,
		Name:      "Test User " + id,
		Email:     id + "@example.com",
		Credits:   credits,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Storage.CreateUser(context.Background(), user); err != nil {
		db.t.Fatalf("failed to seed user %q: %v", id, err)
	}
	return user
}

// MustSaveSummary stores summary as the user's live income summary.
func (db *TestDB) MustSaveSummary(summary *model.IncomeSummary) {
	db.t.Helper()

	if err := db.Storage.UpsertIncomeSummary(context.Background(), summary); err != nil {
		db.t.Fatalf("failed to seed income summary for %q: %v", summary.UserID, err)
	}
}

// SampleSummary returns a two-platform summary for userID ending at end.
func SampleSummary(userID string, end time.Time) *model.IncomeSummary {
	return &model.IncomeSummary{
		UserID:           userID,
		PeriodStart:      end.AddDate(0, 0, -90),
		PeriodEnd:        end,
		UpdatedAt:        end,
		CurrencyCode:     "USD",
		Total90Days:      200,
		MonthlyAverage:   66.67,
		WeeklyAverage:    15.38,
		ConsistencyScore: 12,
		PlatformBreakdown: []model.PlatformTotal{
			{Name: "Uber", Total: 120, Percentage: 60},
			{Name: "DoorDash", Total: 80, Percentage: 40},
		},
	}
}
