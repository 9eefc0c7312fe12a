package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/sheets"
	"github.com/spf13/cobra"
)

func (a *app) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
	}
	cmd.AddCommand(a.authSheetsCmd())
	return cmd
}

func (a *app) authSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Authenticate with Google Sheets",
		Long: `Authenticate with Google Sheets using OAuth2.

This command opens your browser to authorize GigProof, then saves the
refresh token to your config file so 'gigproof report --sheets' can write
reports.`,
		RunE: a.runAuthSheets,
	}
	cmd.Flags().String("client-id", "", "OAuth2 Client ID (overrides config)")
	cmd.Flags().String("client-secret", "", "OAuth2 Client Secret (overrides config)")
	cmd.Flags().String("listen", "localhost:8080", "address for the OAuth callback")
	return cmd
}

func (a *app) runAuthSheets(cmd *cobra.Command, _ []string) error {
	sc := a.cfg.SheetsWriterConfig()
	clientID, clientSecret := sc.ClientID, sc.ClientSecret
	if flagID, _ := cmd.Flags().GetString("client-id"); flagID != "" {
		clientID = flagID
	}
	if flagSecret, _ := cmd.Flags().GetString("client-secret"); flagSecret != "" {
		clientSecret = flagSecret
	}
	if clientID == "" || clientSecret == "" {
		return common.NewUserError("OAuth2 credentials not found. Set sheets.client_id and sheets.client_secret or pass --client-id and --client-secret.", common.ErrMissingConfig)
	}

	listen, _ := cmd.Flags().GetString("listen")
	tokenFile := filepath.Join(a.configDir(), "sheets-token.json")
	slog.Info("Starting Google Sheets authentication", "token_file", tokenFile)

	token, err := sheets.AuthenticateOAuth2Interactive(cmd.Context(), sheets.OAuth2Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		ListenAddr:   listen,
		TokenFile:    tokenFile,
	}, func(url string) {
		cmd.Println(cli.FormatInfo(cli.KeyIcon + " Opening Google sign-in. If the browser doesn't open, visit:"))
		cmd.Println(url)
		openBrowser(url)
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	a.v.Set("sheets.client_id", clientID)
	a.v.Set("sheets.client_secret", clientSecret)
	a.v.Set("sheets.refresh_token", token.RefreshToken)
	if err := a.saveConfig(); err != nil {
		slog.Warn("Failed to update config file with refresh token", "error", err)
		cmd.Println(cli.FormatWarning("Could not save the refresh token. Add this to your config.yaml:"))
		cmd.Printf("sheets:\n  refresh_token: %q\n", token.RefreshToken)
		return nil
	}

	cmd.Println(cli.FormatSuccess("Google Sheets is connected. Run 'gigproof report --sheets' to publish reports."))
	return nil
}
