package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"busbooking/internal/dashboard"
	"busbooking/internal/httpapi"
	"busbooking/internal/memstore"
	"busbooking/internal/notify"
	"busbooking/internal/session"
	"busbooking/internal/user"
	"busbooking/pkg/config"
	"busbooking/pkg/logger"
	"busbooking/pkg/metrics"
)

const secret = "router-test-secret"

type recordingSink struct {
	events []notify.Event
}

func (s *recordingSink) Notify(_ context.Context, ev notify.Event) error {
	s.events = append(s.events, ev)
	return nil
}

type server struct {
	t    *testing.T
	h    http.Handler
	now  time.Time
	sink *recordingSink
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := memstore.New()
	for _, u := range []user.User{
		{ID: "admin-1", Role: session.RoleAdmin, Active: true},
		{ID: "teacher-1", Role: session.RoleTeacher, Active: true},
		{ID: "deputy-1", Role: session.RoleDeputy, Active: true},
		{ID: "principal-1", Role: session.RolePrincipal, Active: true},
		{ID: "driver-1", Role: session.RoleDriver, Active: true},
	} {
		store.PutUser(u)
	}

	reg := prometheus.NewRegistry()
	s := &server{t: t, now: time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC), sink: &recordingSink{}}
	s.h = httpapi.NewRouter(httpapi.Dependencies{
		Cfg: config.Config{
			Session:        config.SessionConfig{Secret: secret, TTL: time.Hour},
			StoreTimeout:   time.Second,
			SchoolTimezone: time.UTC,
			RateLimitRPS:   1000,
			RateLimitBurst: 1000,
		},
		Log:         logger.NewNop(),
		Metrics:     metrics.New("test", reg),
		Gatherer:    reg,
		Buses:       store.Buses(),
		Bookings:    store.Bookings(),
		Users:       store.Users(),
		Sink:        s.sink,
		DriverScope: dashboard.ScopeAll,
		Now:         func() time.Time { return s.now },
	})
	return s
}

func (s *server) do(method, path, actorID string, role session.Role, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actorID != "" {
		tok, err := session.IssueToken(session.Actor{ID: actorID, Role: role}, secret, time.Hour, s.now)
		if err != nil {
			s.t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

type bookingBody struct {
	Booking struct {
		ID                 string   `json:"id"`
		Status             string   `json:"status"`
		Buses              []string `json:"buses"`
		DriverAcknowledged bool     `json:"driverAcknowledged"`
	} `json:"booking"`
}

type errorBody struct {
	Error struct {
		Code   string `json:"code"`
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	} `json:"error"`
}

func TestRouter_ApprovalFlow(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/v1/buses", "admin-1", session.RoleAdmin, map[string]any{"busNumber": "bus-7", "capacity": 45})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bus: %d %s", rec.Code, rec.Body.String())
	}
	busID := decode[struct {
		Bus struct {
			ID string `json:"id"`
		} `json:"bus"`
	}](t, rec).Bus.ID

	rec = s.do(http.MethodPost, "/v1/bookings", "teacher-1", session.RoleTeacher, map[string]any{
		"purpose": "Geography field trip", "venue": "Victoria Falls", "tripDate": "2025-05-03",
		"departureTime": "06:00", "returnTime": "18:30",
		"headcounts": map[string]int{"form4": 38},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create booking: %d %s", rec.Code, rec.Body.String())
	}
	id := decode[bookingBody](t, rec).Booking.ID

	rec = s.do(http.MethodGet, "/v1/buses/available?date=2025-05-03", "deputy-1", session.RoleDeputy, nil)
	if !strings.Contains(rec.Body.String(), busID) {
		t.Fatalf("bus should be available: %s", rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/v1/deputy/bookings/"+id+"/approve", "deputy-1", session.RoleDeputy, map[string]any{"buses": []string{busID}, "comment": "fine"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deputy approve: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[bookingBody](t, rec).Booking; got.Status != "DEPUTY_APPROVED" || len(got.Buses) != 1 {
		t.Fatalf("after deputy: %+v", got)
	}

	rec = s.do(http.MethodGet, "/v1/buses/available?date=2025-05-03", "deputy-1", session.RoleDeputy, nil)
	if strings.Contains(rec.Body.String(), busID) {
		t.Fatalf("held bus listed as available: %s", rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/v1/principal/bookings/"+id+"/approve", "principal-1", session.RolePrincipal, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("principal approve: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/v1/driver/bookings/"+id+"/acknowledge", "driver-1", session.RoleDriver, nil)
	if rec.Code != http.StatusOK || !decode[bookingBody](t, rec).Booking.DriverAcknowledged {
		t.Fatalf("acknowledge: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/v1/bookings/"+id+"/actions", "teacher-1", session.RoleTeacher, nil)
	items := decode[struct {
		Items []struct {
			Kind string `json:"kind"`
		} `json:"items"`
	}](t, rec).Items
	if len(items) != 4 {
		t.Fatalf("actions: %s", rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/v1/bookings/"+id+"/trip-sheet", "driver-1", session.RoleDriver, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("trip sheet: %d", rec.Code)
	}

	if len(s.sink.events) != 4 {
		t.Fatalf("notifications: %d", len(s.sink.events))
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newServer(t)

	if rec := s.do(http.MethodGet, "/v1/bookings/mine", "", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}

	rec := s.do(http.MethodPost, "/v1/bookings", "teacher-1", session.RoleTeacher, map[string]any{"tripDate": "2025-04-19"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid booking: %d %s", rec.Code, rec.Body.String())
	}
	if body := decode[errorBody](t, rec); body.Error.Code != "VALIDATION_FAILED" || len(body.Error.Fields) < 2 {
		t.Fatalf("validation body: %s", rec.Body.String())
	}

	if rec := s.do(http.MethodPost, "/v1/deputy/bookings/nope/approve", "teacher-1", session.RoleTeacher, map[string]any{"buses": []string{"x"}}); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong role: %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/v1/bookings/nope", "deputy-1", session.RoleDeputy, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing booking: %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/v1/buses/available?date=tomorrow", "deputy-1", session.RoleDeputy, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/v1/buses", "teacher-1", session.RoleTeacher, map[string]any{"busNumber": "X", "capacity": 10}); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin bus create: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader("{"))
	tok, _ := session.IssueToken(session.Actor{ID: "teacher-1", Role: session.RoleTeacher}, secret, time.Hour, s.now)
	req.Header.Set("Authorization", "Bearer "+tok)
	raw := httptest.NewRecorder()
	s.h.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", raw.Code)
	}
}

func TestRouter_Dashboard(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/v1/dashboard", "deputy-1", session.RoleDeputy, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Role      string         `json:"role"`
		Dashboard map[string]any `json:"dashboard"`
	}](t, rec)
	if body.Role != "deputy" {
		t.Fatalf("role: %q", body.Role)
	}
	if _, ok := body.Dashboard["pendingBookings"]; !ok {
		t.Fatalf("deputy dashboard: %s", rec.Body.String())
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newServer(t)
	if rec := s.do(http.MethodGet, "/healthz", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	s.do(http.MethodPost, "/v1/bookings", "teacher-1", session.RoleTeacher, map[string]any{
		"purpose": "Sports day", "venue": "Stadium", "tripDate": "2025-05-03",
		"departureTime": "08:00", "returnTime": "13:00", "headcounts": map[string]int{"form1": 5},
	})
	rec := s.do(http.MethodGet, "/metrics", "", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "test_bookings_created_total 1") {
		t.Fatalf("metrics: %d", rec.Code)
	}

	unhealthy := httpapi.NewRouter(httpapi.Dependencies{
		Log:  logger.NewNop(),
		Ping: func(context.Context) error { return errors.New("down") },
	})
	rec = httptest.NewRecorder()
	unhealthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: %d", rec.Code)
	}
}

func TestRouter_ReassignAndAdminList(t *testing.T) {
	s := newServer(t)

	var busIDs []string
	for _, n := range []string{"bus-1", "bus-2"} {
		rec := s.do(http.MethodPost, "/v1/buses", "admin-1", session.RoleAdmin, map[string]any{"busNumber": n, "capacity": 40})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create bus: %d %s", rec.Code, rec.Body.String())
		}
		busIDs = append(busIDs, decode[struct {
			Bus struct {
				ID string `json:"id"`
			} `json:"bus"`
		}](t, rec).Bus.ID)
	}

	rec := s.do(http.MethodPost, "/v1/bookings", "teacher-1", session.RoleTeacher, map[string]any{
		"purpose": "Choir festival", "venue": "City hall", "tripDate": "2025-05-03",
		"departureTime": "07:00", "returnTime": "17:00", "headcounts": map[string]int{"form2": 30},
	})
	id := decode[bookingBody](t, rec).Booking.ID
	s.do(http.MethodPost, "/v1/deputy/bookings/"+id+"/approve", "deputy-1", session.RoleDeputy, map[string]any{"buses": []string{busIDs[0]}})

	rec = s.do(http.MethodPut, "/v1/deputy/bookings/"+id+"/buses", "principal-1", session.RolePrincipal, map[string]any{"buses": []string{busIDs[1]}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("principal reassign: %d", rec.Code)
	}
	rec = s.do(http.MethodPut, "/v1/deputy/bookings/"+id+"/buses", "deputy-1", session.RoleDeputy, map[string]any{"buses": []string{busIDs[1]}})
	if rec.Code != http.StatusOK {
		t.Fatalf("reassign: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[bookingBody](t, rec).Booking; got.Status != "DEPUTY_APPROVED" || len(got.Buses) != 1 || got.Buses[0] != busIDs[1] {
		t.Fatalf("after reassign: %+v", got)
	}

	if rec := s.do(http.MethodGet, "/v1/bookings", "teacher-1", session.RoleTeacher, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("teacher list all: %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/v1/bookings?status=bogus", "admin-1", session.RoleAdmin, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: %d", rec.Code)
	}
	type listBody struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	rec = s.do(http.MethodGet, "/v1/bookings?status=DEPUTY_APPROVED,pending", "admin-1", session.RoleAdmin, nil)
	if rec.Code != http.StatusOK || len(decode[listBody](t, rec).Items) != 1 {
		t.Fatalf("filtered list: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodGet, "/v1/bookings?status=REJECTED", "admin-1", session.RoleAdmin, nil)
	if rec.Code != http.StatusOK || len(decode[listBody](t, rec).Items) != 0 {
		t.Fatalf("rejected list: %d %s", rec.Code, rec.Body.String())
	}
}
