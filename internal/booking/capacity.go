package booking

import (
	"github.com/shopspring/decimal"

	"busbooking/internal/bus"
)

// CapacityReport compares seats against headcount. It is advisory: an undersized
// assignment is reported, never rejected.
type CapacityReport struct {
	BookingID        string          `json:"bookingId"`
	Headcount        int             `json:"headcount"`
	AssignedCapacity int             `json:"assignedCapacity"`
	ExtraCapacity    int             `json:"extraCapacity"`
	TotalCapacity    int             `json:"totalCapacity"`
	Utilization      decimal.Decimal `json:"utilizationPercent"`
	Covered          bool            `json:"covered"`
	Shortfall        int             `json:"shortfall"`
}

func BuildCapacityReport(b *Booking, assigned []bus.Bus) CapacityReport {
	r := CapacityReport{
		BookingID:        b.ID,
		Headcount:        b.TotalHeadcount(),
		AssignedCapacity: bus.TotalCapacity(assigned),
	}
	for _, x := range b.ExtraBuses {
		r.ExtraCapacity += x.Capacity
	}
	r.TotalCapacity = r.AssignedCapacity + r.ExtraCapacity
	r.Covered = r.TotalCapacity >= r.Headcount
	if !r.Covered {
		r.Shortfall = r.Headcount - r.TotalCapacity
	}
	if r.TotalCapacity > 0 {
		r.Utilization = decimal.NewFromInt(int64(r.Headcount)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(r.TotalCapacity))).
			Round(1)
	}
	return r
}
