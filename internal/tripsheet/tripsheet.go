// Package tripsheet renders the printable driver sheet for an approved trip.
package tripsheet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"busbooking/internal/apperr"
	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/calendar"
	"busbooking/internal/session"
)

const stampLayout = "2006-01-02 15:04"

// Sheet is everything printed on one trip sheet.
type Sheet struct {
	Booking  booking.Booking
	Buses    []bus.Bus
	Actions  []booking.Action
	Capacity booking.CapacityReport
}

type Builder struct {
	machine *booking.Machine
	buses   *bus.Registry
}

func NewBuilder(machine *booking.Machine, buses *bus.Registry) *Builder {
	return &Builder{machine: machine, buses: buses}
}

// Load gathers the sheet for a principal-approved booking the actor may view.
func (b *Builder) Load(ctx context.Context, actor session.Actor, id string) (*Sheet, error) {
	bk, err := b.machine.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if bk.Status != booking.StatusPrincipalApproved {
		return nil, apperr.InvalidState(fmt.Sprintf("trip sheet is only available for %s bookings, booking is %s", booking.StatusPrincipalApproved, bk.Status))
	}
	actions, err := b.machine.Actions(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	buses := make([]bus.Bus, 0, len(bk.Buses))
	for _, busID := range bk.Buses {
		v, err := b.buses.Get(ctx, busID)
		if apperr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		buses = append(buses, *v)
	}
	return &Sheet{
		Booking:  *bk,
		Buses:    buses,
		Actions:  actions,
		Capacity: booking.BuildCapacityReport(bk, buses),
	}, nil
}

// Render writes s as a single-page A4 PDF.
func Render(s *Sheet, w io.Writer) error {
	qrPNG, err := qrcode.Encode(s.Booking.ID, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Trip sheet "+s.Booking.ID, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Bus Trip Sheet")
	pdf.Ln(12)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 160, 10, 35, 35, false, imageOpts, 0, "")

	b := s.Booking
	pdf.SetFont("Arial", "", 11)
	line := func(label, value string) {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(45, 7, label)
		pdf.SetFont("Arial", "", 11)
		pdf.Cell(0, 7, value)
		pdf.Ln(7)
	}
	line("Booking", b.ID)
	line("Purpose", b.Purpose)
	line("Venue", b.Venue)
	line("Date", calendar.Format(b.TripDate))
	line("Departure / return", b.DepartureTime+" - "+b.ReturnTime)
	line("Students", fmt.Sprintf("%d (%s)", b.TotalHeadcount(), headcountSummary(&b)))
	if len(b.AccompanyingTeachers) > 0 {
		line("Teachers", strings.Join(b.AccompanyingTeachers, ", "))
	}
	ack := "no"
	if b.Acknowledged && b.AcknowledgedAt != nil {
		ack = fmt.Sprintf("yes, by %s at %s", b.AcknowledgedBy, b.AcknowledgedAt.Format(stampLayout))
	}
	line("Driver acknowledged", ack)
	pdf.Ln(4)

	section(pdf, "Buses")
	table(pdf, []float64{40, 30, 110}, []string{"Number", "Capacity", "Description"}, busRows(s))
	pdf.Ln(2)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Seats %d for %d students, utilization %s%%", s.Capacity.TotalCapacity, s.Capacity.Headcount, s.Capacity.Utilization.String()))
	pdf.Ln(10)

	section(pdf, "Approval trail")
	table(pdf, []float64{35, 45, 25, 75}, []string{"When", "Who", "Action", "Comment"}, actionRows(s.Actions))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

func table(pdf *gofpdf.Fpdf, widths []float64, header []string, rows [][]string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		for i, v := range row {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func busRows(s *Sheet) [][]string {
	rows := make([][]string, 0, len(s.Buses)+len(s.Booking.ExtraBuses))
	for _, b := range s.Buses {
		rows = append(rows, []string{b.Number, fmt.Sprint(b.Capacity), b.Description})
	}
	for _, x := range s.Booking.ExtraBuses {
		rows = append(rows, []string{x.Number, fmt.Sprint(x.Capacity), strings.TrimSpace("extra " + x.Description)})
	}
	return rows
}

func actionRows(actions []booking.Action) [][]string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		what := string(a.To)
		if a.Kind != booking.ActionTransition {
			what = string(a.Kind)
		}
		rows = append(rows, []string{
			a.OccurredAt.Format(stampLayout),
			a.ActorID + " (" + a.ActorRole + ")",
			what,
			truncate(a.Comment, 45),
		})
	}
	return rows
}

func headcountSummary(b *booking.Booking) string {
	parts := make([]string, 0, len(b.Headcounts))
	for _, c := range b.Categories() {
		parts = append(parts, fmt.Sprintf("%s %d", c, b.Headcounts[c]))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
