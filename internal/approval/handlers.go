package approval

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"busbooking/internal/api"
	"busbooking/internal/booking"
	"busbooking/pkg/logger"
)

type Handlers struct {
	Coordinator *Coordinator
	Log         logger.Logger
}

type ApproveRequest struct {
	Buses   []string `json:"buses"`
	Comment string   `json:"comment"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req booking.Details
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	b, err := h.Coordinator.Submit(r.Context(), actor, req)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]any{"booking": b})
}

func (h Handlers) DeputyApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.DeputyApprove(r.Context(), actor, chi.URLParam(r, "id"), req.Buses, req.Comment))
}

func (h Handlers) ReassignBuses(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.ReassignBuses(r.Context(), actor, chi.URLParam(r, "id"), req.Buses, req.Comment))
}

func (h Handlers) DeputyReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	comment, err := readComment(w, r)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.DeputyReject(r.Context(), actor, chi.URLParam(r, "id"), comment))
}

func (h Handlers) PrincipalApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	comment, err := readComment(w, r)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.PrincipalApprove(r.Context(), actor, chi.URLParam(r, "id"), comment))
}

func (h Handlers) PrincipalReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	comment, err := readComment(w, r)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.PrincipalReject(r.Context(), actor, chi.URLParam(r, "id"), comment))
}

func (h Handlers) Acknowledge(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	h.respond(w)(h.Coordinator.Acknowledge(r.Context(), actor, chi.URLParam(r, "id")))
}

func (h Handlers) AddExtraBus(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req booking.ExtraBusInput
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.AddExtraBus(r.Context(), actor, chi.URLParam(r, "id"), req))
}

func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	comment, err := readComment(w, r)
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}
	h.respond(w)(h.Coordinator.Cancel(r.Context(), actor, chi.URLParam(r, "id"), comment))
}

func (h Handlers) respond(w http.ResponseWriter) func(*booking.Booking, error) {
	return func(b *booking.Booking, err error) {
		if err != nil {
			api.WriteDomainError(w, h.Log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
	}
}

// readComment reads {"comment": "..."} when a body is present. Rejections and
// cancellations may be posted without one.
func readComment(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return "", nil
	}
	var req CommentRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.Comment, nil
}
