package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/gigproof/internal/report"
	"github.com/Veraticus/gigproof/internal/server"
	gigsync "github.com/Veraticus/gigproof/internal/sync"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification and reporting HTTP API",
		Long: `Serve the HTTP API.

The verification lookup is public. Report, income, sync and bank-link
endpoints trust the identity header set by the upstream gateway.`,
		RunE: a.runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	assembler, err := a.newAssembler(store)
	if err != nil {
		return err
	}
	ledger, err := a.newLedger(store)
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Store:    store,
		Verifier: ledger,
		Reports:  assembler,
	}

	plaidClient, err := a.newPlaidClient()
	if err != nil {
		return fmt.Errorf("failed to create Plaid client: %w", err)
	}
	if plaidClient != nil {
		syncer, syncErr := a.newSyncer(store, gigsync.WithSource(plaidClient))
		if syncErr != nil {
			return syncErr
		}
		deps.Linker = plaidClient
		deps.Sync = syncer
	} else {
		slog.Warn("Plaid is not configured; sync and link endpoints are disabled")
	}

	writer, err := a.newSheetsWriter(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Sheets writer: %w", err)
	}
	if writer != nil {
		deps.Renderers = []report.Renderer{writer}
	}

	sc := a.cfg.Server
	addr := sc.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	handler := server.NewRouter(deps, server.RouterOptions{
		UserHeader:     sc.UserHeader,
		RequestTimeout: sc.RequestTimeout,
		TrustProxy:     sc.TrustProxy,
	})
	srv := server.New(server.Options{
		Addr:         addr,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}, handler)

	return srv.Run(ctx)
}
