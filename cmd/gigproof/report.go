package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/report"
	"github.com/spf13/cobra"
)

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Issue a verified income report (spends one credit)",
		Long: `Issue a verified income report for a user.

Each report spends one credit and carries a verification code lenders can
check with 'gigproof verify' or the HTTP API. With --sheets the report is
also written to Google Sheets.`,
		RunE: a.runReport,
	}
	cmd.Flags().StringP("user", "u", "", "user ID (required)")
	cmd.Flags().Bool("sheets", false, "write the report to Google Sheets")
	cmd.Flags().Bool("json", false, "print the report payload as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")
	toSheets, _ := cmd.Flags().GetBool("sheets")
	asJSON, _ := cmd.Flags().GetBool("json")

	var renderers []report.Renderer
	if toSheets {
		writer, err := a.newSheetsWriter(ctx)
		if err != nil {
			return fmt.Errorf("failed to create Sheets writer: %w", err)
		}
		if writer == nil {
			return common.NewUserError("Google Sheets is not configured. Run 'gigproof auth sheets' first.", common.ErrMissingConfig)
		}
		renderers = append(renderers, writer)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	assembler, err := a.newAssembler(store)
	if err != nil {
		return err
	}

	payload, err := assembler.AssembleAndRender(ctx, userID, renderers...)
	if payload == nil {
		return err
	}
	if err != nil {
		slog.Warn("Report issued but rendering failed", "report_id", payload.ReportID, "error", err)
		cmd.Println(cli.FormatWarning("Report issued, but writing to Google Sheets failed: " + common.MessageOf(err)))
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	cmd.Println(cli.RenderReport(payload))
	return nil
}
