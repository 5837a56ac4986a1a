package calendar

import (
	"testing"
	"time"
)

func TestDay_UsesSchoolZone(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	// 22:30 UTC on May 1 is already May 2 in UTC+3.
	now := time.Date(2025, 5, 1, 22, 30, 0, 0, time.UTC)

	if got := Format(Day(now, time.UTC)); got != "2025-05-01" {
		t.Fatalf("utc day: got %s", got)
	}
	if got := Format(Day(now, nairobi)); got != "2025-05-02" {
		t.Fatalf("local day: got %s", got)
	}
}

func TestParseAndNormalize(t *testing.T) {
	d, err := Parse("2025-05-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !Normalize(d.Add(13*time.Hour)).Equal(d) {
		t.Fatalf("normalize should drop time of day")
	}
	if _, err := Parse("01/05/2025"); err == nil {
		t.Fatalf("expected layout error")
	}
}
