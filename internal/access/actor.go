package access

import (
	"context"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

// Actor is the authenticated account performing a request.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type contextKey string

const actorKey contextKey = "clinicdesk.actor"

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

// RequireActor returns the actor or an Unauthorized error.
func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, apperr.Unauthorized("Not authorized, no token")
	}
	return actor, nil
}
