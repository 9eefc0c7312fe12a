package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/ofx"
	"github.com/Veraticus/gigproof/internal/simplefin"
	gigsync "github.com/Veraticus/gigproof/internal/sync"
	"github.com/spf13/cobra"
)

const (
	sourceAuto      = "auto"
	sourcePlaid     = "plaid"
	sourceSimpleFIN = "simplefin"
)

func (a *app) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the last 90 days from the linked bank and refresh income",
		Long: `Fetch the last 90 days of transactions and refresh the user's income summary.

With --source auto (the default) a saved SimpleFIN connection is used when
one exists, otherwise the user's Plaid item.`,
		RunE: a.runSync,
	}
	cmd.Flags().StringP("user", "u", "", "user ID (required)")
	cmd.Flags().String("source", sourceAuto, "transaction source: auto, plaid or simplefin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) runSync(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	source, _ := cmd.Flags().GetString("source")

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Sync interrupted, stopping")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	txSource, token, err := a.resolveSource(source, user)
	if err != nil {
		return err
	}

	syncer, err := a.newSyncer(store,
		gigsync.WithSource(txSource),
		gigsync.WithProgress(cli.NewProgress(cmd.ErrOrStderr(), "Classifying")),
	)
	if err != nil {
		return err
	}

	cmd.Println(cli.FormatInfo(cli.BankIcon + " Fetching transactions from your bank..."))
	result, err := syncer.Sync(ctx, user.ID, token)
	if err != nil {
		if handler.WasInterrupted() {
			return common.NewUserError("Sync canceled.", err)
		}
		return err
	}

	a.printResult(cmd, result)
	return nil
}

// resolveSource picks the transaction source for user and the token it reads with.
func (a *app) resolveSource(source string, user *model.User) (gigsync.TransactionSource, string, error) {
	switch source {
	case sourceAuto, sourceSimpleFIN:
		access, err := simplefin.LoadAccess(simplefin.AccessPath(a.configDir(), user.ID))
		switch {
		case err == nil:
			slog.Info("Using SimpleFIN connection", "user_id", user.ID, "claimed_at", access.ClaimedAt)
			return simplefin.NewClient(), access.AccessURL, nil
		case !errors.Is(err, simplefin.ErrNoAccess):
			return nil, "", err
		case source == sourceSimpleFIN:
			return nil, "", common.NewUserError(
				"No SimpleFIN connection saved. Run 'gigproof link -u "+user.ID+" --simplefin-token <token>' first.",
				common.ErrBadRequest)
		}
		return a.plaidSource(user)
	case sourcePlaid:
		return a.plaidSource(user)
	default:
		return nil, "", common.NewUserError(fmt.Sprintf("Unknown source %q. Use auto, plaid or simplefin.", source), common.ErrBadRequest)
	}
}

func (a *app) plaidSource(user *model.User) (gigsync.TransactionSource, string, error) {
	client, err := a.newPlaidClient()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Plaid client: %w", err)
	}
	if client == nil {
		return nil, "", common.NewUserError("Plaid credentials are not configured. Set plaid.client_id and plaid.secret.", common.ErrMissingConfig)
	}
	return client, user.PlaidAccessToken, nil
}

func (a *app) importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import bank transactions from OFX or QFX files and refresh the user's
gig income summary.

Examples:
  # Import a single file
  gigproof import-ofx -u alice ~/Downloads/checking_jan.qfx

  # Import every statement in a directory
  gigproof import-ofx -u alice ~/Downloads/statements/*.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runImportOFX,
	}
	cmd.Flags().StringP("user", "u", "", "user ID (required)")
	cmd.Flags().BoolP("dry-run", "d", false, "parse files without saving")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) runImportOFX(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	slog.Info("Importing OFX files", "file_count", len(files), "dry_run", dryRun)

	parser := ofx.NewParser()
	seen := make(map[string]bool)
	var txs []model.Transaction
	rows := make([][]string, 0, len(files))

	for _, path := range files {
		parsed, err := parseOFXFile(cmd, parser, path)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			rows = append(rows, []string{filepath.Base(path), "error"})
			continue
		}

		added := 0
		for _, tx := range parsed {
			if seen[tx.ID] {
				continue
			}
			seen[tx.ID] = true
			txs = append(txs, tx)
			added++
		}
		rows = append(rows, []string{filepath.Base(path), fmt.Sprintf("%d", added)})
	}

	cmd.Println(cli.RenderTable([]string{"File", "Transactions"}, rows))

	if len(txs) == 0 {
		cmd.Println(cli.FormatWarning("No transactions found in any file"))
		return nil
	}
	if dryRun {
		cmd.Println(cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions parsed, nothing saved", len(txs))))
		return nil
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	syncer, err := a.newSyncer(store)
	if err != nil {
		return err
	}

	result, err := syncer.Import(ctx, userID, txs)
	if err != nil {
		return err
	}

	a.printResult(cmd, result)
	return nil
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parser.ParseFile(cmd.Context(), f)
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			files = append(files, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}

	if len(files) == 0 {
		return nil, common.NewUserError("No files found to import.", common.ErrBadRequest)
	}
	return files, nil
}

func (a *app) printResult(cmd *cobra.Command, result *gigsync.Result) {
	cmd.Println(cli.FormatSuccess(fmt.Sprintf("Processed %d transactions: %d classified, %d gig deposits, %d skipped",
		result.Fetched, result.Classified, result.GigIncome, result.Skipped)))
	if result.Summary != nil {
		cmd.Println(cli.RenderSummary(result.Summary))
	}
}
