package main

import (
	"encoding/json"
	"net/http"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/verification"
	"github.com/spf13/cobra"
)

// localIP is the throttling key for lookups made from the CLI.
const localIP = "local"

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [code]",
		Short: "Look up a report by verification code or content hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hash, _ := cmd.Flags().GetString("hash")
			asJSON, _ := cmd.Flags().GetBool("json")

			req := verification.LookupRequest{ContentHash: hash, IP: localIP}
			if len(args) == 1 {
				req.Code = args[0]
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ledger, err := a.newLedger(store)
			if err != nil {
				return err
			}

			result, err := ledger.Lookup(ctx, req)
			if err != nil {
				if _, code := common.StatusOf(err); code >= http.StatusInternalServerError {
					return err
				}
				result = verification.FailureResult(err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			cmd.Println(cli.RenderVerification(result))
			return nil
		},
	}
	cmd.Flags().String("hash", "", "content hash printed on the report")
	cmd.Flags().Bool("json", false, "print the lookup result as JSON")
	return cmd
}
