package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFieldsCollectsEveryViolation(t *testing.T) {
	var f Fields
	if f.Err() != nil {
		t.Fatalf("empty fields should yield nil error")
	}
	f.Add("purpose", "is required")
	f.Add("headcounts", "total must be at least 1")

	err := f.Err()
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var ae *Error
	if !errors.As(err, &ae) || len(ae.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %#v", err)
	}
	if !ae.HasField("headcounts") || ae.HasField("venue") {
		t.Fatalf("HasField mismatch: %#v", ae.Fields)
	}
}

func TestIsMatchesByKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve: %w", Conflict("bus taken"))
	if !IsConflict(err) {
		t.Fatalf("expected conflict through wrap")
	}
	if IsForbidden(err) || IsInvalidTransition(err) {
		t.Fatalf("kinds must not cross-match")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("untyped errors have no kind")
	}
}

func TestFromStore(t *testing.T) {
	if FromStore(nil) != nil {
		t.Fatalf("nil stays nil")
	}

	err := FromStore(fmt.Errorf("query: %w", context.DeadlineExceeded))
	if !IsTimeout(err) {
		t.Fatalf("deadline should map to timeout, got %v", err)
	}
	var ae *Error
	if !errors.As(err, &ae) || !ae.Retryable() {
		t.Fatalf("timeout should be retryable")
	}

	nf := NotFound("booking", "x")
	if FromStore(nf) != error(nf) {
		t.Fatalf("typed errors pass through unchanged")
	}

	plain := errors.New("connection reset")
	if FromStore(plain) != plain {
		t.Fatalf("unknown store errors bubble up unmodified")
	}
}
