package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/verification"
)

const maxBodyBytes = 64 << 10

type handlers struct {
	logger *slog.Logger
	deps   Dependencies
	opts   RouterOptions
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.deps.Store.Ping(ctx); err != nil {
		h.logger.Error("health probe failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verify answers a lookup. Failures use the lookup result shape rather than
// ErrorResponse so relying parties parse a single schema.
func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	var req verification.LookupRequest
	if r.Method == http.MethodGet {
		req.Code = r.URL.Query().Get("code")
		req.ContentHash = r.URL.Query().Get("contentHash")
	} else if decodeErr := decodeBody(w, r, &req); decodeErr != nil {
		// An empty request still passes lockout and quota checks and is
		// recorded as a bad request.
		_, err := h.deps.Verifier.Lookup(r.Context(), verification.LookupRequest{IP: clientIP(r, h.opts.TrustProxy)})
		if err == nil || errors.Is(err, common.ErrBadRequest) {
			err = decodeErr
		}
		h.respondLookupError(w, r, err)
		return
	}
	req.IP = clientIP(r, h.opts.TrustProxy)

	result, err := h.deps.Verifier.Lookup(r.Context(), req)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handlers) respondLookupError(w http.ResponseWriter, r *http.Request, err error) {
	_, code := common.StatusOf(err)
	if code >= http.StatusInternalServerError {
		h.logFailure(r, err, "verification lookup failed")
	}
	respondJSON(w, code, verification.FailureResult(err))
}

type reportResponse struct {
	*model.ReportPayload
	Warnings []string `json:"warnings,omitempty"`
}

func (h *handlers) createReport(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	payload, err := h.deps.Reports.AssembleAndRender(r.Context(), userID, h.deps.Renderers...)
	if err != nil && payload == nil {
		h.respondError(w, r, err)
		return
	}

	resp := reportResponse{ReportPayload: payload}
	if err != nil {
		// The credit is spent and the record exists; report the render
		// failure without losing the code.
		h.logger.Warn("report rendering failed", "report_id", payload.ReportID, "error", err)
		resp.Warnings = append(resp.Warnings, common.MessageOf(err))
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *handlers) income(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Store.GetIncomeSummary(r.Context(), UserID(r.Context()))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			err = common.ErrNoIncomeData
		}
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type syncResponse struct {
	Summary    *model.IncomeSummary `json:"summary"`
	Fetched    int                  `json:"fetched"`
	Classified int                  `json:"classified"`
	GigIncome  int                  `json:"gigIncome"`
	Skipped    int                  `json:"skipped"`
}

func (h *handlers) sync(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sync == nil {
		h.respondError(w, r, fmt.Errorf("%w: bank sync is not configured", common.ErrUpstreamUnavailable))
		return
	}

	user, err := h.currentUser(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.deps.Sync.Sync(r.Context(), user.ID, user.PlaidAccessToken)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, syncResponse{
		Summary:    result.Summary,
		Fetched:    result.Fetched,
		Classified: result.Classified,
		GigIncome:  result.GigIncome,
		Skipped:    result.Skipped,
	})
}

func (h *handlers) linkToken(w http.ResponseWriter, r *http.Request) {
	if h.deps.Linker == nil {
		h.respondError(w, r, fmt.Errorf("%w: plaid is not configured", common.ErrUpstreamUnavailable))
		return
	}

	token, err := h.deps.Linker.CreateLinkToken(r.Context(), UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"linkToken": token})
}

func (h *handlers) exchange(w http.ResponseWriter, r *http.Request) {
	if h.deps.Linker == nil {
		h.respondError(w, r, fmt.Errorf("%w: plaid is not configured", common.ErrUpstreamUnavailable))
		return
	}

	var req struct {
		PublicToken string `json:"publicToken"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.PublicToken == "" {
		h.respondError(w, r, common.NewUserError("publicToken is required.", common.ErrBadRequest))
		return
	}

	user, err := h.currentUser(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	accessToken, itemID, err := h.deps.Linker.ExchangePublicToken(r.Context(), req.PublicToken)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.deps.Store.SetPlaidItem(r.Context(), user.ID, accessToken, itemID); err != nil {
		h.respondError(w, r, fmt.Errorf("%w: saving plaid item: %w", common.ErrUpstreamUnavailable, err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"itemId": itemID})
}

func (h *handlers) currentUser(ctx context.Context) (*model.User, error) {
	user, err := h.deps.Store.GetUser(ctx, UserID(ctx))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: loading user: %w", common.ErrUpstreamUnavailable, err)
	}
	return user, nil
}

func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if _, code := common.StatusOf(err); code >= http.StatusInternalServerError {
		h.logFailure(r, err, "request failed")
	}
	respondError(w, err)
}

func (h *handlers) logFailure(r *http.Request, err error, msg string) {
	common.LogError(r.Context(), h.logger, err, msg, common.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": RequestID(r.Context()),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.NewUserError("Request body must be valid JSON.", fmt.Errorf("%w: %w", common.ErrBadRequest, err))
	}
	return nil
}
