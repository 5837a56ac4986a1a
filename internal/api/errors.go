package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"busbooking/internal/apperr"
	"busbooking/pkg/logger"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, APIError{Code: code, Message: message})
}

func writeEnvelope(w http.ResponseWriter, status int, e APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: e})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError renders a workflow error. Untyped errors are logged and hidden
// behind a generic 500.
func WriteDomainError(w http.ResponseWriter, log logger.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error("unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	if ae.Kind == apperr.KindTimeout {
		w.Header().Set("Retry-After", "1")
	}
	msg := ae.Message
	if msg == "" {
		msg = string(ae.Kind)
	}
	writeEnvelope(w, StatusFor(ae.Kind), APIError{Code: string(ae.Kind), Message: msg, Fields: ae.Fields})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a request body into v, reporting malformed input as a validation error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("body", "invalid JSON")
	}
	return nil
}
