package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-context/internal/domain"
	"github.com/tjfontaine/polyglot-context/internal/storage"
)

type UsageListResponse struct {
	Data []*storage.UsageRecord `json:"data"`
}

func (h *Handler) HandleListUsage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, domain.ErrNotFound("usage recording is disabled"))
		return
	}

	opts := storage.ListOptions{Model: r.URL.Query().Get("model")}
	var err error
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}
	opts.Limit = min(opts.Limit, maxListLimit)

	records, err := h.store.ListUsage(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UsageListResponse{Data: records})
}

func (h *Handler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, domain.ErrNotFound("usage recording is disabled"))
		return
	}

	rec, err := h.store.GetUsage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// queryInt parses a non-negative integer query parameter. Missing means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.ErrInvalidRequest(name + " must be a non-negative integer").WithParam(name)
	}
	return n, nil
}
