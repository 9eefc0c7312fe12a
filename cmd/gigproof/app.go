package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/gigproof/internal/classifier"
	"github.com/Veraticus/gigproof/internal/income"
	"github.com/Veraticus/gigproof/internal/plaid"
	"github.com/Veraticus/gigproof/internal/platform"
	"github.com/Veraticus/gigproof/internal/report"
	"github.com/Veraticus/gigproof/internal/service"
	"github.com/Veraticus/gigproof/internal/sheets"
	"github.com/Veraticus/gigproof/internal/storage"
	gigsync "github.com/Veraticus/gigproof/internal/sync"
	"github.com/Veraticus/gigproof/internal/verification"
)

// openStore opens the configured database and brings its schema up to date.
func (a *app) openStore(ctx context.Context) (service.Storage, error) {
	store, err := a.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openSQLite is openStore for commands that need SQLite-specific operations
// such as backups.
func (a *app) openSQLite(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (a *app) newLedger(store service.Storage) (*verification.Ledger, error) {
	hasher, err := a.cfg.Hasher()
	if err != nil {
		return nil, err
	}
	return verification.NewLedger(store,
		verification.WithHasher(hasher),
		verification.WithPolicy(a.cfg.Policy()),
	), nil
}

func (a *app) newAssembler(store service.Storage) (*report.Assembler, error) {
	ledger, err := a.newLedger(store)
	if err != nil {
		return nil, err
	}
	return report.NewAssembler(store, ledger), nil
}

func (a *app) newSyncer(store service.Storage, opts ...gigsync.Option) (*gigsync.Syncer, error) {
	table, err := a.cfg.PlatformTable()
	if err != nil {
		return nil, err
	}
	c := classifier.New(platform.NewMatcher(table), a.cfg.ClassifierEnvironment(), nil)
	return gigsync.NewSyncer(store, c, income.NewEngine(nil), opts...), nil
}

// newPlaidClient returns nil without error when Plaid is not configured.
func (a *app) newPlaidClient() (*plaid.Client, error) {
	cfg := a.cfg.PlaidClientConfig()
	if cfg.ClientID == "" && cfg.Secret == "" {
		return nil, nil
	}
	return plaid.NewClient(cfg)
}

// newSheetsWriter returns nil without error when no Google auth is configured.
func (a *app) newSheetsWriter(ctx context.Context) (*sheets.Writer, error) {
	cfg := a.cfg.SheetsWriterConfig()
	if !cfg.HasAuth() {
		return nil, nil
	}
	return sheets.NewWriter(ctx, cfg)
}
