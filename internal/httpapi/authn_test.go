package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"justping.io/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc.def.ghi", "abc.def.ghi", false},
		{"  Bearer abc  ", "abc", false},
		{"", "", true},
		{"Bearer ", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"abc.def.ghi", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("extractBearerToken(%q): want error, got %q", tc.header, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, %v; want %q", tc.header, got, err, tc.want)
		}
	}
}

func TestRequireAuthStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"expired", auth.ErrTokenExpired, http.StatusUnauthorized},
		{"invalid", auth.ErrTokenInvalid, http.StatusUnauthorized},
		{"revoked", fmt.Errorf("%w: token has been revoked", auth.ErrUnauthorized), http.StatusUnauthorized},
		{"blacklist down", fmt.Errorf("%w: blacklist lookup", auth.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubAuthService{
				authenticate: func(context.Context, string) (auth.Principal, error) {
					return auth.Principal{}, tc.err
				},
			}
			a := newTestAPI(stub)

			req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
			req.Header.Set("Authorization", "Bearer something")
			rec := httptest.NewRecorder()
			a.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestRequireAuthAttachesPrincipalAndToken(t *testing.T) {
	principal := auth.Principal{
		UserID:      "usr-1",
		BusinessID:  "biz-1",
		Permissions: auth.PermissionMap{"users": {"read": true}},
	}
	stub := &stubAuthService{
		authenticate: func(_ context.Context, token string) (auth.Principal, error) {
			if token != "good" {
				return auth.Principal{}, auth.ErrTokenInvalid
			}
			return principal, nil
		},
	}
	a := newTestAPI(stub)

	var seenPrincipal auth.Principal
	var seenToken string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPrincipal, _ = auth.PrincipalFromContext(r.Context())
		seenToken, _ = auth.TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	a.requireAuth(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seenPrincipal.UserID != "usr-1" || seenToken != "good" {
		t.Fatalf("context not populated: %+v, %q", seenPrincipal, seenToken)
	}
}

func TestRequirePermission(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := RequirePermission("users.delete")(next)

	// No principal at all.
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no principal: status = %d", rec.Code)
	}

	// Principal without the grant.
	principal := auth.Principal{UserID: "usr-1", Permissions: auth.PermissionMap{"users": {"read": true}}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing grant: status = %d", rec.Code)
	}

	// Principal with the grant.
	principal.Permissions = auth.PermissionMap{"users": {"delete": true}}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("granted: status = %d", rec.Code)
	}
}
