package tripsheet

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"busbooking/internal/api"
	"busbooking/pkg/logger"
)

type Handlers struct {
	Builder *Builder
	Log     logger.Logger
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	sheet, err := h.Builder.Load(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, h.Log, err)
		return
	}

	var buf bytes.Buffer
	if err := Render(sheet, &buf); err != nil {
		h.Log.Error("trip sheet render failed", "booking_id", sheet.Booking.ID, "error", err)
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to generate trip sheet")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=trip-sheet-"+sheet.Booking.ID+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
