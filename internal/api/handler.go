// Package api serves token accounting for prompt context over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-context/internal/domain"
	"github.com/tjfontaine/polyglot-context/internal/promptctx"
	"github.com/tjfontaine/polyglot-context/internal/server"
	"github.com/tjfontaine/polyglot-context/internal/storage"
	"github.com/tjfontaine/polyglot-context/internal/tokens"
)

// estimateEncoding is reported when no codec could be loaded and counts
// come from the rune estimator.
const estimateEncoding = "estimate"

// maxListLimit caps GET /v1/usage page sizes.
const maxListLimit = 1000

// Settings are the values that can change while the server runs.
type Settings struct {
	Windows tokens.Windows
	Strict  bool
	Reserve int
}

// Handler implements the accounting endpoints.
type Handler struct {
	registry  *tokens.Registry
	encoding  tokenizer.Encoding
	cacheSize int
	store     storage.UsageStore
	logger    *slog.Logger
	settings  atomic.Pointer[Settings]

	mu       sync.Mutex
	counters map[tokenizer.Encoding]tokens.Counter
}

// Option configures a Handler.
type Option func(*Handler)

// WithStore records every context count in store.
func WithStore(store storage.UsageStore) Option {
	return func(h *Handler) {
		h.store = store
	}
}

// WithCache memoises counts per encoding in an LRU of the given size.
func WithCache(size int) Option {
	return func(h *Handler) {
		h.cacheSize = size
	}
}

// WithDefaultEncoding sets the encoding used when a request names no model.
func WithDefaultEncoding(enc tokenizer.Encoding) Option {
	return func(h *Handler) {
		h.encoding = enc
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler counting with registry.
func NewHandler(registry *tokens.Registry, settings Settings, opts ...Option) *Handler {
	h := &Handler{
		registry: registry,
		encoding: tokens.DefaultEncoding,
		logger:   slog.Default(),
		counters: make(map[tokenizer.Encoding]tokens.Counter),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.UpdateSettings(settings)
	return h
}

// UpdateSettings swaps the runtime settings. Requests in flight keep
// the settings they started with.
func (h *Handler) UpdateSettings(s Settings) {
	if s.Windows == nil {
		s.Windows = tokens.DefaultWindows()
	}
	h.settings.Store(&s)
}

// Settings returns the current runtime settings.
func (h *Handler) Settings() Settings {
	return *h.settings.Load()
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tokens/count", h.HandleCountTokens)
		r.Post("/context/count", h.HandleCountContext)
		r.Post("/messages/count", h.HandleCountMessages)
		r.Get("/usage", h.HandleListUsage)
		r.Get("/usage/{id}", h.HandleGetUsage)
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// counterFor resolves the counter for a request. An explicit encoding
// wins over the model; with neither the default encoding is used.
func (h *Handler) counterFor(model, encoding string) (tokens.Counter, string, error) {
	enc := h.encoding
	switch {
	case encoding != "":
		parsed, err := tokens.ParseEncoding(encoding)
		if err != nil {
			return nil, "", domain.ErrInvalidRequest(err.Error()).
				WithCode(domain.ErrorCodeUnknownEncoding).
				WithParam("encoding")
		}
		enc = parsed
	case model != "":
		enc = tokens.EncodingForModel(model)
	}

	counter, loaded := h.registry.CounterForEncoding(enc)
	if loaded == "" {
		return counter, estimateEncoding, nil
	}
	if h.cacheSize <= 0 {
		return counter, string(loaded), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if cached, ok := h.counters[loaded]; ok {
		return cached, string(loaded), nil
	}
	cached, err := tokens.NewCachingCounter(counter, h.cacheSize)
	if err != nil {
		return nil, "", err
	}
	h.counters[loaded] = cached
	return cached, string(loaded), nil
}

func (h *Handler) accountant(counter tokens.Counter, s Settings) *promptctx.Accountant {
	return promptctx.NewAccountant(counter, promptctx.WithStrict(s.Strict))
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err)).
			WithCode(domain.ErrorCodeInvalidJSON)
	}
	return nil
}

// toAPIError maps accounting and storage failures onto the HTTP error model.
func toAPIError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var srcErr *promptctx.SourceError
	if errors.As(err, &srcErr) {
		return domain.ErrTokenization(srcErr.Error()).
			WithParam(fmt.Sprintf("%s[%d]", srcErr.Kind, srcErr.Index))
	}
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrNotFound(err.Error())
	}
	return domain.ErrServer("internal error")
}

type errorResponse struct {
	Error *domain.APIError `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)
	apiErr := toAPIError(err)
	writeJSON(w, apiErr.HTTPStatusCode(), errorResponse{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
