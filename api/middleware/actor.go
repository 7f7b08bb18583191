package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/audit"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	actorKindHeader = "X-Actor-Kind"
	actorIDHeader   = "X-Actor-Id"
)

// Actor derives the acting principal from the gateway headers. Requests without
// either header continue anonymously.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kind := strings.ToLower(strings.TrimSpace(r.Header.Get(actorKindHeader)))
			id := strings.TrimSpace(r.Header.Get(actorIDHeader))
			if kind == "" && id == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor := audit.Actor{Kind: enums.ActorKind(kind), ID: id}
			if err := actor.Validate(); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor headers"))
				return
			}

			ctx := audit.WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActorKind rejects requests whose actor is missing or not one of kinds.
func RequireActorKind(logg *logger.Logger, kinds ...enums.ActorKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := audit.FromContext(r.Context())
			if ok {
				for _, kind := range kinds {
					if actor.Kind == kind {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "actor not permitted"))
		})
	}
}
