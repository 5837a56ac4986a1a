package tripsheet_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"busbooking/internal/api"
	"busbooking/internal/apperr"
	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/memstore"
	"busbooking/internal/session"
	"busbooking/internal/tripsheet"
	"busbooking/pkg/logger"
	"busbooking/pkg/metrics"
)

var (
	admin     = session.Actor{ID: "admin-1", Role: session.RoleAdmin}
	teacher   = session.Actor{ID: "teacher-1", Role: session.RoleTeacher}
	other     = session.Actor{ID: "teacher-2", Role: session.RoleTeacher}
	deputy    = session.Actor{ID: "deputy-1", Role: session.RoleDeputy}
	principal = session.Actor{ID: "principal-1", Role: session.RolePrincipal}
	driver    = session.Actor{ID: "driver-1", Role: session.RoleDriver}
)

func setup(t *testing.T) (*booking.Machine, *bus.Registry, *booking.Booking, string) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	now := time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC)
	registry := bus.NewRegistry(store.Buses(), logger.NewNop(), metrics.NewNop())
	machine := booking.NewMachine(store.Bookings(), registry, nil, logger.NewNop(), metrics.NewNop(), time.UTC).
		WithClock(func() time.Time { return now })

	b1, err := registry.Create(ctx, admin, bus.Input{Number: "bus-1", Capacity: 30, Description: "Blue coach"})
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	bk, err := machine.Create(ctx, teacher, booking.Details{
		Purpose: "Museum visit", Venue: "City Museum", TripDate: "2025-05-01",
		DepartureTime: "08:30", ReturnTime: "15:00",
		Headcounts:           map[string]int{"form1": 25, "form2": 10},
		AccompanyingTeachers: []string{"Ms Moyo"},
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return machine, registry, bk, b1.ID
}

func TestBuilder_RendersApprovedBooking(t *testing.T) {
	ctx := context.Background()
	machine, registry, bk, busID := setup(t)
	if _, err := machine.Transition(ctx, deputy, bk.ID, booking.StatusDeputyApproved, booking.Payload{Buses: []string{busID}, Comment: "ok"}); err != nil {
		t.Fatalf("deputy approve: %v", err)
	}
	if _, err := machine.Transition(ctx, principal, bk.ID, booking.StatusPrincipalApproved, booking.Payload{}); err != nil {
		t.Fatalf("principal approve: %v", err)
	}
	if _, err := machine.AddExtraBus(ctx, driver, bk.ID, booking.ExtraBusInput{Number: "HIRE-9", Capacity: 15}); err != nil {
		t.Fatalf("extra bus: %v", err)
	}

	sheet, err := tripsheet.NewBuilder(machine, registry).Load(ctx, driver, bk.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sheet.Buses) != 1 || len(sheet.Actions) != 4 {
		t.Fatalf("sheet: buses=%d actions=%d", len(sheet.Buses), len(sheet.Actions))
	}
	if !sheet.Capacity.Covered || sheet.Capacity.TotalCapacity != 45 {
		t.Fatalf("capacity: %+v", sheet.Capacity)
	}

	var buf bytes.Buffer
	if err := tripsheet.Render(sheet, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a pdf")
	}
}

func TestBuilder_RejectsUnapprovedAndOutsiders(t *testing.T) {
	ctx := context.Background()
	machine, registry, bk, _ := setup(t)
	builder := tripsheet.NewBuilder(machine, registry)

	if _, err := builder.Load(ctx, teacher, bk.ID); !apperr.IsInvalidState(err) {
		t.Fatalf("pending booking: expected invalid state, got %v", err)
	}
	if _, err := builder.Load(ctx, other, bk.ID); !apperr.IsForbidden(err) {
		t.Fatalf("outsider: expected forbidden, got %v", err)
	}
	if _, err := builder.Load(ctx, teacher, "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("missing booking: expected not found, got %v", err)
	}
}

func TestHandlers_Get(t *testing.T) {
	ctx := context.Background()
	machine, registry, bk, busID := setup(t)
	if _, err := machine.Transition(ctx, deputy, bk.ID, booking.StatusDeputyApproved, booking.Payload{Buses: []string{busID}}); err != nil {
		t.Fatalf("deputy approve: %v", err)
	}

	h := tripsheet.Handlers{Builder: tripsheet.NewBuilder(machine, registry), Log: logger.NewNop()}
	r := chi.NewRouter()
	r.Get("/bookings/{id}/trip-sheet", h.Get)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/bookings/"+bk.ID+"/trip-sheet", nil)
		req = req.WithContext(api.WithActor(req.Context(), teacher))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(); rec.Code != http.StatusConflict {
		t.Fatalf("deputy-approved booking: status=%d body=%s", rec.Code, rec.Body.String())
	}

	if _, err := machine.Transition(ctx, principal, bk.ID, booking.StatusPrincipalApproved, booking.Payload{}); err != nil {
		t.Fatalf("principal approve: %v", err)
	}
	rec := do()
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
}
