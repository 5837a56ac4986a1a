package bus

import (
	"sort"
	"strings"
	"time"

	"busbooking/internal/apperr"
)

// Bus is a schedulable vehicle. It can be held by at most one booking per trip date.
type Bus struct {
	ID          string    `json:"id"`
	Number      string    `json:"busNumber"`
	Capacity    int       `json:"capacity"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	DriverID    string    `json:"driverId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input is the administrative create/update payload. A nil Active means "leave as is"
// on update and "active" on create.
type Input struct {
	Number      string `json:"busNumber"`
	Capacity    int    `json:"capacity"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
	DriverID    string `json:"driverId"`
}

func NormalizeNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (in Input) Validate() error {
	var f apperr.Fields
	if NormalizeNumber(in.Number) == "" {
		f.Add("busNumber", "is required")
	}
	if in.Capacity <= 0 {
		f.Add("capacity", "must be a positive integer")
	}
	return f.Err()
}

func (in Input) apply(b *Bus) {
	b.Number = NormalizeNumber(in.Number)
	b.Capacity = in.Capacity
	b.Description = strings.TrimSpace(in.Description)
	b.DriverID = strings.TrimSpace(in.DriverID)
	if in.Active != nil {
		b.Active = *in.Active
	}
}

// NormalizeIDs trims, drops blanks and duplicates, and sorts so row locks are always
// taken in the same order.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TotalCapacity sums the seats of the given buses.
func TotalCapacity(buses []Bus) int {
	n := 0
	for _, b := range buses {
		n += b.Capacity
	}
	return n
}
