package booking

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"busbooking/internal/api"
	"busbooking/internal/apperr"
	"busbooking/pkg/logger"
)

// Handlers serves the read side of a booking. Mutations go through the approval
// coordinator.
type Handlers struct {
	Machine *Machine
	Log     logger.Logger
}

// List serves the admin view of every booking. ?status= may repeat or hold a
// comma-separated list.
func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	items, err := h.Machine.ListAll(r.Context(), actor, statuses)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	items, err := h.Machine.ListMine(r.Context(), actor)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	b, err := h.Machine.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) Actions(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	items, err := h.Machine.Actions(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Capacity(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	report, err := h.Machine.Capacity(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

func parseStatuses(raw []string) ([]Status, error) {
	var out []Status
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			st, err := ParseStatus(part)
			if err != nil {
				return nil, apperr.Validation("status", err.Error())
			}
			out = append(out, st)
		}
	}
	return out, nil
}
