package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Veraticus/gigproof/internal/certs"
	"github.com/Veraticus/gigproof/internal/cli"
	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/plaid"
	"github.com/Veraticus/gigproof/internal/simplefin"
	"github.com/spf13/cobra"
)

const linkTimeout = 10 * time.Minute

var linkPage = template.Must(template.New("link").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Connect your bank - GigProof</title>
    <script src="https://cdn.plaid.com/link/v2/stable/link-initialize.js"></script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background-color: #f5f5f5; }
        .container { text-align: center; background: white; padding: 40px; border-radius: 8px;
                     box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        button { background-color: #2EC4B6; color: white; padding: 12px 24px;
                 font-size: 16px; border: none; border-radius: 4px; cursor: pointer; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Connect the account your gig payouts land in</h1>
        <button id="link-button">Connect bank account</button>
        <div id="message"></div>
    </div>
    <script>
    const handler = Plaid.create({
        token: {{.LinkToken}},
        onSuccess: (public_token) => {
            fetch('/exchange', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ publicToken: public_token })
            })
            .then(r => r.json())
            .then(data => {
                document.getElementById('message').innerText = data.success
                    ? 'Connected. You can close this window.'
                    : (data.error || 'Connection failed');
            });
        }
    });
    document.getElementById('link-button').onclick = () => handler.open();
    </script>
</body>
</html>`))

func (a *app) linkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Connect a user's bank account via Plaid Link",
		Long: `Connect a user's bank account using Plaid Link.

This command starts a local web page that opens Plaid Link, exchanges the
resulting public token and stores the access token on the user. In the
sandbox a public token can be passed directly with --public-token.

Banks without Plaid coverage can be connected through SimpleFIN Bridge
instead by passing the setup token with --simplefin-token.`,
		RunE: a.runLink,
	}
	cmd.Flags().StringP("user", "u", "", "user ID (required)")
	cmd.Flags().String("listen", "localhost:8765", "address for the local Link page")
	cmd.Flags().String("public-token", "", "exchange this public token without opening Link")
	cmd.Flags().String("simplefin-token", "", "claim this SimpleFIN setup token instead of using Plaid")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) runLink(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")
	listen, _ := cmd.Flags().GetString("listen")
	publicToken, _ := cmd.Flags().GetString("public-token")
	setupToken, _ := cmd.Flags().GetString("simplefin-token")

	if setupToken != "" {
		return a.linkSimpleFIN(cmd, userID, setupToken, simplefin.NewClient())
	}

	client, err := a.newPlaidClient()
	if err != nil {
		return fmt.Errorf("failed to create Plaid client: %w", err)
	}
	if client == nil {
		return common.NewUserError("Plaid credentials are not configured. Set plaid.client_id and plaid.secret.", common.ErrMissingConfig)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if _, err := store.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	if publicToken == "" {
		tlsCfg, err := a.linkTLSConfig()
		if err != nil {
			return err
		}
		publicToken, err = awaitPublicToken(ctx, client, userID, listen, tlsCfg, func(url string) {
			cmd.Println(cli.FormatInfo(cli.BankIcon + " Opening Plaid Link. If the browser doesn't open, visit " + url))
			if tlsCfg != nil {
				cmd.Println(cli.FormatWarning("The page uses a self-signed certificate, so expect a browser security warning."))
			}
			openBrowser(url)
		})
		if err != nil {
			return err
		}
	}

	accessToken, itemID, err := client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return err
	}
	if err := store.SetPlaidItem(ctx, userID, accessToken, itemID); err != nil {
		return fmt.Errorf("failed to save bank connection: %w", err)
	}

	cmd.Println(cli.FormatSuccess("Bank account connected. Run 'gigproof sync -u " + userID + "' to import income."))
	return nil
}

func (a *app) linkSimpleFIN(cmd *cobra.Command, userID, setupToken string, client *simplefin.Client) error {
	ctx := cmd.Context()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if _, err := store.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	accessURL, err := client.Claim(ctx, setupToken)
	if err != nil {
		return err
	}

	access := &simplefin.Access{UserID: userID, AccessURL: accessURL, ClaimedAt: time.Now().UTC()}
	if err := simplefin.SaveAccess(simplefin.AccessPath(a.configDir(), userID), access); err != nil {
		return fmt.Errorf("failed to save SimpleFIN connection: %w", err)
	}

	cmd.Println(cli.FormatSuccess("SimpleFIN connected. Run 'gigproof sync -u " + userID + "' to import income."))
	return nil
}

// linkTLSConfig returns nil outside Plaid production, which accepts plain
// HTTP redirects to localhost.
func (a *app) linkTLSConfig() (*tls.Config, error) {
	if a.cfg.Plaid.Environment != "production" {
		return nil, nil
	}
	cfg, err := certs.TLSConfig(certs.NewFileManager(filepath.Join(a.configDir(), "certs")))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare local certificate: %w", err)
	}
	return cfg, nil
}

// linkHandler serves the Link page and forwards the public token it posts.
func linkHandler(linkToken string, tokens chan<- string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if err := linkPage.Execute(w, struct{ LinkToken string }{linkToken}); err != nil {
			slog.Error("Failed to render Link page", "error", err)
		}
	})
	mux.HandleFunc("POST /exchange", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PublicToken string `json:"publicToken"`
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublicToken == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Invalid request"})
			return
		}

		select {
		case tokens <- req.PublicToken:
		default:
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	return mux
}

// awaitPublicToken serves the Link page on addr until it posts a public
// token. A non-nil tlsCfg serves it over HTTPS.
func awaitPublicToken(ctx context.Context, linker plaid.Linker, userID, addr string, tlsCfg *tls.Config, onURL func(string)) (string, error) {
	linkToken, err := linker.CreateLinkToken(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to create link token: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start Link server: %w", err)
	}
	scheme := "http"
	if tlsCfg != nil {
		listener = tls.NewListener(listener, tlsCfg)
		scheme = "https"
	}

	tokens := make(chan string, 1)
	errCh := make(chan error, 1)
	server := &http.Server{Handler: linkHandler(linkToken, tokens), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	onURL(scheme + "://" + listener.Addr().String())

	select {
	case token := <-tokens:
		return token, nil
	case err := <-errCh:
		return "", fmt.Errorf("link server failed: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(linkTimeout):
		return "", common.NewUserError("Timed out waiting for the bank connection.", common.ErrUpstreamUnavailable)
	}
}

// openBrowser tries to open the URL in the default browser.
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start() //nolint:gosec
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start() //nolint:gosec
	case "darwin":
		err = exec.Command("open", url).Start() //nolint:gosec
	}
	if err != nil {
		slog.Debug("Failed to open browser", "error", err)
	}
}
