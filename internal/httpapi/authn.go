package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"justping.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth authenticates the bearer token, gates it through the
// blacklist, and attaches the resulting principal plus raw token to the
// request context. A blacklist outage fails closed with 503 rather than
// risking a revoked token being honored.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.svc.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrServiceUnavailable):
				respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			case errors.Is(err, auth.ErrTokenExpired):
				respondError(w, http.StatusUnauthorized, "token expired")
			case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrUnauthorized):
				respondError(w, http.StatusUnauthorized, "invalid token")
			default:
				a.log.Errorw("authentication error", "err", err)
				respondError(w, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission guards a route behind a "resource.action" grant. Other
// protected surfaces of the application mount this after requireAuth.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !principal.HasPermission(perm) {
				respondError(w, http.StatusForbidden, "missing permission: "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
