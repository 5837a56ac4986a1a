package booking

import (
	"fmt"
	"sort"
	"time"
)

type ActionKind string

const (
	ActionCreate      ActionKind = "CREATE"
	ActionTransition  ActionKind = "TRANSITION"
	ActionAcknowledge ActionKind = "ACKNOWLEDGE"
	ActionExtraBus    ActionKind = "EXTRA_BUS"
	ActionReassign    ActionKind = "REASSIGN_BUSES"
)

// Action is one audit entry of a booking's approval trail. Actions are append-only;
// Seq is assigned by the store and is dense per booking.
type Action struct {
	ID         string         `json:"id"`
	BookingID  string         `json:"bookingId"`
	Seq        int            `json:"seq"`
	Kind       ActionKind     `json:"kind"`
	ActorID    string         `json:"actorId"`
	ActorRole  string         `json:"actorRole"`
	From       *Status        `json:"from"`
	To         Status         `json:"to"`
	Comment    string         `json:"comment,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Replay reconstructs a booking's status from its trail, failing on any entry that
// does not follow the workflow graph.
func Replay(actions []Action) (Status, error) {
	if len(actions) == 0 {
		return "", fmt.Errorf("empty trail")
	}
	sorted := append([]Action(nil), actions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	first := sorted[0]
	if first.Kind != ActionCreate || first.From != nil || first.To != StatusPending {
		return "", fmt.Errorf("trail must start with creation in %s", StatusPending)
	}
	cur := first.To

	for _, a := range sorted[1:] {
		if a.From == nil || *a.From != cur {
			return "", fmt.Errorf("action %d: does not start from %s", a.Seq, cur)
		}
		switch a.Kind {
		case ActionTransition:
			if !IsEdge(cur, a.To) {
				return "", fmt.Errorf("action %d: %s -> %s is not a workflow edge", a.Seq, cur, a.To)
			}
		case ActionAcknowledge, ActionExtraBus, ActionReassign:
			if a.To != cur {
				return "", fmt.Errorf("action %d: %s must not change status", a.Seq, a.Kind)
			}
		default:
			return "", fmt.Errorf("action %d: unexpected kind %s", a.Seq, a.Kind)
		}
		cur = a.To
	}
	return cur, nil
}
