package dashboard

import (
	"net/http"

	"busbooking/internal/api"
	"busbooking/pkg/logger"
)

type Handlers struct {
	Aggregator *Aggregator
	Log        logger.Logger
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	view, err := h.Aggregator.For(r.Context(), actor)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"role": actor.Role, "dashboard": view})
}
