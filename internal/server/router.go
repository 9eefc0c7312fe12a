package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/plaid"
	"github.com/Veraticus/gigproof/internal/report"
	gigsync "github.com/Veraticus/gigproof/internal/sync"
	"github.com/Veraticus/gigproof/internal/verification"
)

// Store is the read and link persistence the handlers use directly.
type Store interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetIncomeSummary(ctx context.Context, userID string) (*model.IncomeSummary, error)
	SetPlaidItem(ctx context.Context, userID, accessToken, itemID string) error
}

// Verifier answers verification lookups.
type Verifier interface {
	Lookup(ctx context.Context, req verification.LookupRequest) (*verification.Result, error)
}

// ReportService assembles and renders reports.
type ReportService interface {
	AssembleAndRender(ctx context.Context, userID string, renderers ...report.Renderer) (*model.ReportPayload, error)
}

// SyncService refreshes a user's income from their linked bank.
type SyncService interface {
	Sync(ctx context.Context, userID, accessToken string) (*gigsync.Result, error)
}

// Dependencies collects handler dependencies. Linker, Sync and Renderers
// are optional.
type Dependencies struct {
	Store     Store
	Verifier  Verifier
	Reports   ReportService
	Sync      SyncService
	Linker    plaid.Linker
	Renderers []report.Renderer
}

// RouterOptions tunes request handling.
type RouterOptions struct {
	UserHeader     string
	RequestTimeout time.Duration
	TrustProxy     bool
}

// NewRouter wires the HTTP routes exposed by the API.
func NewRouter(deps Dependencies, opts RouterOptions) http.Handler {
	logger := slog.Default().With("component", "http")
	if opts.UserHeader == "" {
		opts.UserHeader = "X-User-ID"
	}

	h := &handlers{deps: deps, opts: opts, logger: logger}
	auth := func(fn http.HandlerFunc) http.HandlerFunc { return requireUser(opts.UserHeader, fn) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /api/verify", h.verify)
	mux.HandleFunc("POST /api/verify", h.verify)
	mux.HandleFunc("POST /api/reports", auth(h.createReport))
	mux.HandleFunc("GET /api/income", auth(h.income))
	mux.HandleFunc("POST /api/sync", auth(h.sync))
	mux.HandleFunc("POST /api/plaid/link-token", auth(h.linkToken))
	mux.HandleFunc("POST /api/plaid/exchange", auth(h.exchange))

	var handler http.Handler = mux
	handler = timeoutMiddleware(opts.RequestTimeout, handler)
	handler = recoveryMiddleware(logger, handler)
	handler = loggingMiddleware(logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}
