package rbac

import (
	"context"
	"net/http"

	"log/slog"

	"github.com/smartq/launchpad/internal/shared"
)

type accessContextKey struct{}

// ContextWithAccess stores the resolved access descriptor in context.
func ContextWithAccess(ctx context.Context, access AccessDescriptor) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext extracts the access descriptor placed by Require.
func AccessFromContext(ctx context.Context) AccessDescriptor {
	access, ok := ctx.Value(accessContextKey{}).(AccessDescriptor)
	if !ok {
		return AccessDescriptor{CanAccess: false, Level: AccessNone}
	}
	return access
}

// Middleware wires page-level authorization for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Require resolves the session's active role against the given resource
// path and blocks the request unless access is granted. The descriptor is
// injected into context so handlers can scope queries to the granted tier.
func (m Middleware) Require(resourcePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			access := Resolve(Role(sess.ActiveRole()), resourcePath)
			if !access.CanAccess {
				if m.Logger != nil {
					m.Logger.Warn("access denied",
						slog.String("role", sess.ActiveRole()),
						slog.String("resource", resourcePath),
						slog.String("reason", access.Message))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAccess(r.Context(), access)))
		})
	}
}

// Actor describes the authenticated principal as seen by domain services.
type Actor struct {
	UserID string
	Role   Role
}

// ActorFromContext builds an Actor from the request session. The second
// return is false when no authenticated session is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return Actor{}, false
	}
	return Actor{UserID: sess.User(), Role: Role(sess.ActiveRole())}, true
}
