package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"busbooking/internal/apperr"
	"busbooking/pkg/logger"
)

func TestWriteDomainError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("venue", "required"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{apperr.Forbidden("no"), http.StatusForbidden, "FORBIDDEN"},
		{apperr.NotFound("booking", "b1"), http.StatusNotFound, "NOT_FOUND"},
		{apperr.InvalidTransition("no edge"), http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{apperr.InvalidState("already acknowledged"), http.StatusConflict, "INVALID_STATE"},
		{apperr.Conflict("bus held"), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("wrapped: %w", apperr.Conflict("bus held")), http.StatusConflict, "CONFLICT"},
		{apperr.FromStore(context.DeadlineExceeded), http.StatusServiceUnavailable, "TIMEOUT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteDomainError(rec, logger.NewNop(), tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, rec.Code, tc.status)
		}
		var env ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%v: decode: %v", tc.err, err)
		}
		if env.Error.Code != tc.code {
			t.Fatalf("%v: code=%q want %q", tc.err, env.Error.Code, tc.code)
		}
	}
}

func TestWriteDomainError_DetailsAndRetryAfter(t *testing.T) {
	var f apperr.Fields
	f.Add("venue", "required")
	f.Add("headcounts", "must include at least one student")

	rec := httptest.NewRecorder()
	WriteDomainError(rec, logger.NewNop(), f.Err())
	var env ErrorEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if len(env.Error.Fields) != 2 || env.Error.Fields[1].Field != "headcounts" {
		t.Fatalf("fields: %+v", env.Error.Fields)
	}

	rec = httptest.NewRecorder()
	WriteDomainError(rec, logger.NewNop(), apperr.FromStore(context.DeadlineExceeded))
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("timeout should carry Retry-After")
	}

	rec = httptest.NewRecorder()
	WriteDomainError(rec, logger.NewNop(), errors.New("pq: password authentication failed"))
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Comment string `json:"comment"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"comment":"ok"}`))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err != nil || v.Comment != "ok" {
		t.Fatalf("decode: %v %+v", err, v)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"comment":`))
	err := DecodeJSON(httptest.NewRecorder(), r, &v)
	var ae *apperr.Error
	if !errors.As(err, &ae) || !ae.HasField("body") {
		t.Fatalf("expected body validation error, got %v", err)
	}
}
