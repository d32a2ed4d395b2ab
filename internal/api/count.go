package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/polyglot-context/internal/domain"
	"github.com/tjfontaine/polyglot-context/internal/promptctx"
	"github.com/tjfontaine/polyglot-context/internal/server"
	"github.com/tjfontaine/polyglot-context/internal/storage"
	"github.com/tjfontaine/polyglot-context/internal/telemetry"
)

type CountTokensRequest struct {
	Model    string `json:"model,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Text     string `json:"text"`
}

type CountTokensResponse struct {
	Tokens   int    `json:"tokens"`
	Encoding string `json:"encoding"`
}

// HandleCountTokens counts a single string.
func (h *Handler) HandleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req CountTokensRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	counter, enc, err := h.counterFor(req.Model, req.Encoding)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "encoding", enc)

	n, err := counter.CountText(req.Text)
	if err != nil {
		h.writeError(w, r, domain.ErrTokenization(err.Error()).WithParam("text"))
		return
	}

	writeJSON(w, http.StatusOK, CountTokensResponse{Tokens: n, Encoding: enc})
}

type CountContextRequest struct {
	Model    string              `json:"model,omitempty"`
	Context  *promptctx.Context  `json:"context"`
	Messages []promptctx.Message `json:"messages,omitempty"`
	// Reserve overrides the configured completion reserve.
	Reserve *int `json:"reserve,omitempty"`
}

type CountContextResponse struct {
	ID       string          `json:"id"`
	Model    string          `json:"model,omitempty"`
	Encoding string          `json:"encoding"`
	Usage    promptctx.Usage `json:"usage"`
	Total    int             `json:"total"`
	Reserve  int             `json:"reserve"`
	Window   int             `json:"window,omitempty"`
	Exceeded bool            `json:"exceeded"`
	// Error explains an exceeded window. The request itself succeeded.
	Error *domain.APIError `json:"error,omitempty"`
}

// HandleCountContext breaks a prompt assembly down by source and checks it
// against the model's context window.
func (h *Handler) HandleCountContext(w http.ResponseWriter, r *http.Request) {
	var req CountContextRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	settings := h.Settings()
	reserve := settings.Reserve
	if req.Reserve != nil {
		if *req.Reserve < 0 {
			h.writeError(w, r, domain.ErrInvalidRequest("reserve must not be negative").WithParam("reserve"))
			return
		}
		reserve = *req.Reserve
	}

	counter, enc, err := h.counterFor(req.Model, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, span := telemetry.Tracer().Start(r.Context(), "promptctx.Breakdown")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", req.Model),
		attribute.String("encoding", enc),
		attribute.Bool("strict", settings.Strict),
	)

	usage, err := h.accountant(counter, settings).Breakdown(req.Context, req.Messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.writeError(w, r, err)
		return
	}

	resp := CountContextResponse{
		ID:       uuid.NewString(),
		Model:    req.Model,
		Encoding: enc,
		Usage:    usage,
		Total:    usage.Total(),
		Reserve:  reserve,
	}
	if req.Model != "" {
		resp.Window, _ = settings.Windows.Lookup(req.Model)
	}
	if apiErr := promptctx.CheckBudget(usage, resp.Window, reserve); apiErr != nil {
		resp.Exceeded = true
		resp.Error = apiErr
	}

	span.SetAttributes(
		attribute.Int("tokens.context", usage.ContextTotal),
		attribute.Int("tokens.total", resp.Total),
		attribute.Bool("exceeded", resp.Exceeded),
	)
	server.AddLogField(r.Context(), "usage_id", resp.ID)
	server.AddLogField(r.Context(), "total_tokens", strconv.Itoa(resp.Total))

	h.record(ctx, &resp)
	writeJSON(w, http.StatusOK, resp)
}

// record stores a usage entry. Storage failures are logged, not returned,
// so accounting keeps working when the ledger is unavailable.
func (h *Handler) record(ctx context.Context, resp *CountContextResponse) {
	if h.store == nil {
		return
	}
	rec := &storage.UsageRecord{
		ID:        resp.ID,
		RequestID: server.GetRequestID(ctx),
		Model:     resp.Model,
		Encoding:  resp.Encoding,
		Content:   resp.Usage.Content,
		Resources: resp.Usage.Resources,
		Documents: resp.Usage.Documents,
		WebSearch: resp.Usage.WebSearch,
		Messages:  resp.Usage.Messages,
		Total:     resp.Total,
		Window:    resp.Window,
		Exceeded:  resp.Exceeded,
	}
	if err := h.store.RecordUsage(ctx, rec); err != nil {
		h.logger.Warn("failed to record usage",
			slog.String("usage_id", rec.ID),
			slog.String("error", err.Error()))
	}
}

type CountMessagesRequest struct {
	Model    string              `json:"model,omitempty"`
	Messages []promptctx.Message `json:"messages"`
	// Budget, when set, trims the oldest messages until the rest fit.
	Budget *int `json:"budget,omitempty"`
}

type CountMessagesResponse struct {
	Tokens   int                 `json:"tokens"`
	Encoding string              `json:"encoding"`
	Kept     []promptctx.Message `json:"kept,omitempty"`
	Dropped  int                 `json:"dropped,omitempty"`
}

// HandleCountMessages counts conversation history, optionally trimming it
// to a token budget.
func (h *Handler) HandleCountMessages(w http.ResponseWriter, r *http.Request) {
	var req CountMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	counter, enc, err := h.counterFor(req.Model, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a := h.accountant(counter, h.Settings())

	if req.Budget == nil {
		n, err := a.CountMessagesTokens(req.Messages)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountMessagesResponse{Tokens: n, Encoding: enc})
		return
	}

	kept, n, err := a.TrimHistory(req.Messages, *req.Budget)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountMessagesResponse{
		Tokens:   n,
		Encoding: enc,
		Kept:     kept,
		Dropped:  len(req.Messages) - len(kept),
	})
}
