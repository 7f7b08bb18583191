package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Actor identifies who performed a mutation. It is recorded as created_by on
// history rows and carried in outbox envelopes.
type Actor struct {
	Kind enums.ActorKind `json:"kind"`
	ID   string          `json:"id"`
}

// Service builds the actor used by background workers.
func Service(name string) Actor {
	return Actor{Kind: enums.ActorKindService, ID: name}
}

// Customer builds an actor for a storefront customer.
func Customer(id string) Actor {
	return Actor{Kind: enums.ActorKindCustomer, ID: id}
}

// Admin builds an actor for a back-office user.
func Admin(id string) Actor {
	return Actor{Kind: enums.ActorKindAdmin, ID: id}
}

// Validate rejects actors missing a known kind or an identifier.
func (a Actor) Validate() error {
	if !a.Kind.IsValid() {
		return fmt.Errorf("invalid actor kind %q", a.Kind)
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("actor id is required")
	}
	return nil
}

// IsZero reports whether no actor was set.
func (a Actor) IsZero() bool {
	return a.Kind == "" && a.ID == ""
}

// String renders the actor as kind:id.
func (a Actor) String() string {
	return string(a.Kind) + ":" + a.ID
}

// Parse reverses String.
func Parse(value string) (Actor, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return Actor{}, fmt.Errorf("actor %q must be kind:id", value)
	}
	actor := Actor{Kind: enums.ActorKind(kind), ID: id}
	if err := actor.Validate(); err != nil {
		return Actor{}, err
	}
	return actor, nil
}

type ctxKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, actor)
}

// FromContext returns the actor stored on the context, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
