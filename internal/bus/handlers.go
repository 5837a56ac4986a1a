package bus

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"busbooking/internal/api"
	"busbooking/internal/apperr"
	"busbooking/internal/calendar"
	"busbooking/pkg/logger"
)

type Handlers struct {
	Registry *Registry
	Log      logger.Logger
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Registry.List(r.Context())
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

// Available answers GET /buses/available?date=YYYY-MM-DD.
func (h Handlers) Available(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	date, err := calendar.Parse(raw)
	if err != nil {
		api.WriteDomainError(w, h.Log, apperr.Validation("date", "must be a date in YYYY-MM-DD form"))
		return
	}
	items, err := h.Registry.ListAvailable(r.Context(), date)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"date": calendar.Format(date), "items": nonNil(items)})
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var in Input
	if err := api.DecodeJSON(w, r, &in); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	b, err := h.Registry.Create(r.Context(), actor, in)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]any{"bus": b})
}

func (h Handlers) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var in Input
	if err := api.DecodeJSON(w, r, &in); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	b, err := h.Registry.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"bus": b})
}

func (h Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	if err := h.Registry.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h Handlers) Audit(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	items, err := h.Registry.AuditTrail(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func nonNil(items []Bus) []Bus {
	if items == nil {
		return []Bus{}
	}
	return items
}
