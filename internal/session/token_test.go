package session

import (
	"testing"
	"time"
)

func TestIssueAndVerifyToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	want := Actor{ID: "deputy-1", Role: RoleDeputy}

	tok, err := IssueToken(want, "s3cret", 10*time.Minute, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := VerifyToken(tok, "s3cret", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != want {
		t.Fatalf("actor mismatch: %+v", got)
	}
}

func TestVerifyToken_Rejects(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok, err := IssueToken(Actor{ID: "t1", Role: RoleTeacher}, "s3cret", time.Minute, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := VerifyToken(tok, "other", now); err == nil {
		t.Fatalf("expected signature error")
	}
	if _, err := VerifyToken(tok, "s3cret", now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
	if _, err := VerifyToken("", "s3cret", now); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestIssueToken_UnknownRole(t *testing.T) {
	if _, err := IssueToken(Actor{ID: "x", Role: "janitor"}, "s", time.Minute, time.Now()); err == nil {
		t.Fatalf("expected unknown role error")
	}
}
