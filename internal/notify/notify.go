// Package notify delivers workflow events to interested parties. Delivery is
// best-effort: callers log and count failures but never roll back because of them.
package notify

import (
	"context"
	"errors"
	"time"

	"busbooking/internal/session"
	"busbooking/pkg/logger"
)

const (
	KindCreated      = "booking.created"
	KindTransitioned = "booking.transitioned"
	KindAcknowledged = "booking.acknowledged"
	KindExtraBus     = "booking.extra_bus"
	KindReassigned   = "booking.buses_reassigned"
)

// Audience names who should hear about an event: everyone holding one of Roles,
// plus the listed users.
type Audience struct {
	Roles   []session.Role `json:"roles,omitempty"`
	UserIDs []string       `json:"userIds,omitempty"`
}

func (a Audience) Empty() bool {
	return len(a.Roles) == 0 && len(a.UserIDs) == 0
}

type Event struct {
	Kind       string    `json:"kind"`
	BookingID  string    `json:"bookingId"`
	TripDate   string    `json:"tripDate"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Comment    string    `json:"comment,omitempty"`
	Audience   Audience  `json:"audience"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// LogSink writes events to the service log.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, ev Event) error {
	s.log.Info("notification",
		"kind", ev.Kind,
		"booking_id", ev.BookingID,
		"to", ev.To,
		"roles", ev.Audience.Roles,
		"user_ids", ev.Audience.UserIDs,
	)
	return nil
}

// Multi fans an event out to every sink and reports all failures together.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
