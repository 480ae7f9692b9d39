package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	authkit "github.com/swapstation/authkit"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal injected by [Guard], if any.
func PrincipalFromContext(ctx context.Context) (*authkit.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authkit.Principal)
	return p, ok
}

// Guard returns middleware that validates the bearer token on every request
// and injects the resulting principal into the request context. Requests
// without a valid token are rejected with 401 before the handler runs.
func Guard(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authkit.WithClientIP(r.Context(), remoteIP(r))
			principal, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff wraps Guard and additionally rejects principals below staff
// level with 403.
func RequireStaff(engine *authkit.Engine) func(http.Handler) http.Handler {
	return requireRole(engine, func(p *authkit.Principal) bool {
		return p.HasStaffAccess()
	})
}

// RequireAdmin wraps Guard and additionally rejects non-admin principals
// with 403.
func RequireAdmin(engine *authkit.Engine) func(http.Handler) http.Handler {
	return requireRole(engine, func(p *authkit.Principal) bool {
		return p.HasAdminAccess()
	})
}

func requireRole(engine *authkit.Engine, allowed func(*authkit.Principal) bool) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !allowed(principal) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
