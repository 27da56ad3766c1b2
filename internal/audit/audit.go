// Package audit records who did what to which entity.
package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Log writes one audit line. fields may add structured detail to the event.
func Log(ctx context.Context, action string, entityType string, entityID string, fields func(*zerolog.Event)) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	event := log.Info().
		Str("audit", action).
		Str("actor", actor.Username).
		Str("actor_role", actor.Role).
		Str("entity_type", entityType).
		Str("entity_id", entityID)
	if fields != nil {
		fields(event)
	}
	event.Msg("audit")
}
