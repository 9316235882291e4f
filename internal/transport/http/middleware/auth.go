package middleware

import (
	"context"
	"net/http"
	"strings"

	"hradmin/internal/domain/auth"
	"hradmin/internal/platform/requestctx"
	"hradmin/internal/transport/http/api"
)

// ActorResolver reloads the caller from the directory so role changes and
// deletions take effect before the token expires.
type ActorResolver func(ctx context.Context, employeeID string) (auth.Actor, error)

// Auth attaches the actor from a valid bearer token. Requests without one
// pass through anonymous; RequireAuth rejects them where needed. With a
// resolver, a token whose employee no longer resolves is ignored.
func Auth(secret string, resolve ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			actor := claims.Actor()
			if resolve != nil {
				current, err := resolve(r.Context(), actor.EmployeeID)
				if err != nil {
					next.ServeHTTP(w, r)
					return
				}
				actor = current
			}

			ctx := requestctx.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetActor(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetActor(ctx context.Context) (auth.Actor, bool) {
	return requestctx.GetActor(ctx)
}
