package api

import (
	"context"

	"busbooking/internal/session"
)

type ctxKey string

const (
	ctxKeyActor     ctxKey = "actor"
	ctxKeyActorSlot ctxKey = "actor_slot"
)

// actorSlot lets an outer middleware see the caller that an inner one authenticated.
type actorSlot struct {
	actor session.Actor
	set   bool
}

func WithActor(ctx context.Context, a session.Actor) context.Context {
	if slot, ok := ctx.Value(ctxKeyActorSlot).(*actorSlot); ok {
		slot.actor, slot.set = a, true
	}
	return context.WithValue(ctx, ctxKeyActor, a)
}

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (session.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(session.Actor)
	return a, ok
}
