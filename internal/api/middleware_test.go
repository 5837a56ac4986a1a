package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"busbooking/internal/session"
	"busbooking/pkg/logger"
)

const testSecret = "test-secret"

func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := RequireActor(w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"id": a.ID, "role": string(a.Role)})
	})
}

func TestSessionAuth(t *testing.T) {
	now := time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC)
	h := SessionAuth(testSecret, func() time.Time { return now })(actorEcho())

	tok, err := session.IssueToken(session.Actor{ID: "deputy-1", Role: session.RoleDeputy}, testSecret, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expired, _ := session.IssueToken(session.Actor{ID: "deputy-1", Role: session.RoleDeputy}, testSecret, time.Hour, now.Add(-2*time.Hour))
	forged, _ := session.IssueToken(session.Actor{ID: "deputy-1", Role: session.RoleDeputy}, "other-secret", time.Hour, now)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + tok, http.StatusOK},
		{"lowercase scheme", "bearer " + tok, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"forged", "Bearer " + forged, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: status=%d want %d body=%s", tc.name, rec.Code, tc.status, rec.Body.String())
		}
	}
}

func TestRequireActor_WithoutSession(t *testing.T) {
	rec := httptest.NewRecorder()
	actorEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestStoreTimeout_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := StoreTimeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok || time.Until(deadline) > 50*time.Millisecond {
		t.Fatalf("deadline not applied: %v %v", deadline, ok)
	}

	h = StoreTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if ok {
		t.Fatalf("zero timeout should not set a deadline")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC)

	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatalf("burst should be allowed")
	}
	if l.Allow("a", now) {
		t.Fatalf("third request in the same instant should be limited")
	}
	if !l.Allow("b", now) {
		t.Fatalf("keys are independent")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Fatalf("bucket should refill")
	}

	l.Allow("b", now.Add(5*time.Minute))
	l.mu.Lock()
	_, kept := l.clients["a"]
	l.mu.Unlock()
	if kept {
		t.Fatalf("idle client should be swept")
	}
}

func TestRateLimiter_MiddlewareKeysByActor(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(actorID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(context.Background(), session.Actor{ID: actorID, Role: session.RoleTeacher}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if call("t1") != http.StatusNoContent || call("t2") != http.StatusNoContent {
		t.Fatalf("first call per actor should pass")
	}
	if code := call("t1"); code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", code)
	}
}

type lineLogger struct {
	logger.Logger
	lines []map[string]interface{}
}

func (l *lineLogger) Info(msg string, kv ...interface{}) {
	line := map[string]interface{}{"msg": msg}
	for i := 0; i+1 < len(kv); i += 2 {
		line[kv[i].(string)] = kv[i+1]
	}
	l.lines = append(l.lines, line)
}

func TestRequestLogger_RecordsAuthenticatedActor(t *testing.T) {
	now := time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC)
	log := &lineLogger{Logger: logger.NewNop()}
	h := RequestLogger(log)(SessionAuth(testSecret, func() time.Time { return now })(actorEcho()))

	tok, _ := session.IssueToken(session.Actor{ID: "principal-1", Role: session.RolePrincipal}, testSecret, time.Hour, now)
	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))

	if len(log.lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(log.lines))
	}
	if got := log.lines[0]["actor"]; got != "principal:principal-1" {
		t.Fatalf("actor=%v", got)
	}
	if got := log.lines[0]["status"]; got != http.StatusOK {
		t.Fatalf("status=%v", got)
	}
	if _, ok := log.lines[1]["actor"]; ok {
		t.Fatalf("unauthenticated request logged an actor: %v", log.lines[1])
	}
}
