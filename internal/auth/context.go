package auth

import "context"

// Principal is the authenticated identity attached to a request. It is built
// entirely from the access token snapshot; only the blacklist check touches
// the datastore on the hot path.
type Principal struct {
	UserID      string        `json:"userId"`
	BusinessID  string        `json:"businessId"`
	Email       string        `json:"email"`
	Roles       []RoleClaim   `json:"roles"`
	Permissions PermissionMap `json:"permissions"`
	FirebaseUID string        `json:"firebaseUid,omitempty"`
	Metadata    TokenMetadata `json:"metadata"`
}

// HasPermission reports whether the principal holds a "resource.action" grant.
func (p Principal) HasPermission(key string) bool {
	return p.Permissions.Allows(key)
}

type principalContextKey struct{}
type tokenContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token for handlers that need it
// back, such as logout.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
