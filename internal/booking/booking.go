package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"busbooking/internal/apperr"
	"busbooking/internal/calendar"
)

const clockLayout = "15:04"

// MaxCategoryHeadcount bounds one headcount category. It keeps totals far from
// integer overflow.
const MaxCategoryHeadcount = 10000

// Booking is a trip request. Fields above Status are fixed at creation.
type Booking struct {
	ID                   string         `json:"id"`
	RequesterID          string         `json:"requesterId"`
	Purpose              string         `json:"purpose"`
	Venue                string         `json:"venue"`
	TripDate             time.Time      `json:"tripDate"`
	DepartureTime        string         `json:"departureTime"`
	ReturnTime           string         `json:"returnTime"`
	Headcounts           map[string]int `json:"headcounts"`
	AccompanyingTeachers []string       `json:"accompanyingTeachers"`

	Status         Status     `json:"status"`
	Buses          []string   `json:"buses"`
	ExtraBuses     []ExtraBus `json:"extraBuses"`
	Comments       []Comment  `json:"comments"`
	Acknowledged   bool       `json:"driverAcknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ExtraBus is a vehicle the driver brought in at dispatch time, outside the registry.
type ExtraBus struct {
	ID          string    `json:"id"`
	Number      string    `json:"busNumber"`
	Capacity    int       `json:"capacity"`
	Description string    `json:"description,omitempty"`
	AddedBy     string    `json:"addedBy"`
	AddedAt     time.Time `json:"addedAt"`
}

// Comment is one entry of the append-only comment log.
type Comment struct {
	AuthorID   string    `json:"authorId"`
	AuthorRole string    `json:"authorRole"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Details is the requester's trip submission.
type Details struct {
	Purpose              string         `json:"purpose"`
	Venue                string         `json:"venue"`
	TripDate             string         `json:"tripDate"`
	DepartureTime        string         `json:"departureTime"`
	ReturnTime           string         `json:"returnTime"`
	Headcounts           map[string]int `json:"headcounts"`
	AccompanyingTeachers []string       `json:"accompanyingTeachers"`
}

// ExtraBusInput is the driver's extra-bus payload.
type ExtraBusInput struct {
	Number      string `json:"busNumber"`
	Capacity    int    `json:"capacity"`
	Description string `json:"description"`
}

func (in ExtraBusInput) Validate() error {
	var f apperr.Fields
	if strings.TrimSpace(in.Number) == "" {
		f.Add("busNumber", "is required")
	}
	if in.Capacity <= 0 {
		f.Add("capacity", "must be a positive integer")
	}
	return f.Err()
}

// validated holds the parsed form of a Details that passed validation.
type validated struct {
	purpose    string
	venue      string
	tripDate   time.Time
	departure  string
	ret        string
	headcounts map[string]int
	teachers   []string
}

// validate checks every field against today (a calendar day) and reports all
// violations together.
func (d Details) validate(today time.Time) (validated, error) {
	var f apperr.Fields
	v := validated{
		purpose: strings.TrimSpace(d.Purpose),
		venue:   strings.TrimSpace(d.Venue),
	}

	if v.purpose == "" {
		f.Add("purpose", "is required")
	}
	if v.venue == "" {
		f.Add("venue", "is required")
	}

	switch date, err := calendar.Parse(strings.TrimSpace(d.TripDate)); {
	case strings.TrimSpace(d.TripDate) == "":
		f.Add("tripDate", "is required")
	case err != nil:
		f.Add("tripDate", "must be a date in YYYY-MM-DD form")
	case date.Before(today):
		f.Add("tripDate", "must not be in the past")
	default:
		v.tripDate = date
	}

	dep, depErr := parseClock(d.DepartureTime)
	ret, retErr := parseClock(d.ReturnTime)
	if depErr != nil {
		f.Add("departureTime", depErr.Error())
	}
	if retErr != nil {
		f.Add("returnTime", retErr.Error())
	}
	if depErr == nil && retErr == nil {
		if !ret.After(dep) {
			f.Add("returnTime", "must be after departure time")
		}
		v.departure = dep.Format(clockLayout)
		v.ret = ret.Format(clockLayout)
	}

	v.headcounts = make(map[string]int, len(d.Headcounts))
	total := 0
	for k, n := range d.Headcounts {
		key := strings.TrimSpace(k)
		switch {
		case key == "":
			f.Add("headcounts", "category name is required")
		case n < 0:
			f.Add("headcounts", fmt.Sprintf("%s must not be negative", key))
		case n > MaxCategoryHeadcount || v.headcounts[key]+n > MaxCategoryHeadcount:
			f.Add("headcounts", fmt.Sprintf("%s must not exceed %d", key, MaxCategoryHeadcount))
		default:
			v.headcounts[key] += n
			total += n
		}
	}
	if total < 1 {
		f.Add("headcounts", "total headcount must be at least 1")
	}

	seen := make(map[string]bool)
	v.teachers = []string{}
	for _, t := range d.AccompanyingTeachers {
		t = strings.TrimSpace(t)
		if t == "" {
			f.Add("accompanyingTeachers", "teacher reference must not be blank")
			continue
		}
		if !seen[t] {
			seen[t] = true
			v.teachers = append(v.teachers, t)
		}
	}

	if err := f.Err(); err != nil {
		return validated{}, err
	}
	return v, nil
}

func parseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a time in HH:MM form")
	}
	return t, nil
}

// TotalHeadcount sums every category.
func (b *Booking) TotalHeadcount() int {
	n := 0
	for _, c := range b.Headcounts {
		n += c
	}
	return n
}

// Categories returns headcount category names in order.
func (b *Booking) Categories() []string {
	out := make([]string, 0, len(b.Headcounts))
	for k := range b.Headcounts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsParticipant reports whether actorID requested the trip or accompanies it.
func (b *Booking) IsParticipant(actorID string) bool {
	if b.RequesterID == actorID {
		return true
	}
	for _, t := range b.AccompanyingTeachers {
		if t == actorID {
			return true
		}
	}
	return false
}

func (b *Booking) addComment(authorID, role, text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.Comments = append(b.Comments, Comment{AuthorID: authorID, AuthorRole: role, Text: text, CreatedAt: at})
}
