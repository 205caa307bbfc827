// Package identity isolates all interaction with the external identity
// provider behind the auth core's IdentityProvider contract. Provider
// failures are translated into the local error taxonomy and never leak
// provider-specific types across the boundary.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"justping.io/internal/auth"
)

const defaultSignInEndpoint = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"

// Firebase adapts Firebase Authentication. Administrative operations go
// through the Admin SDK; password verification uses the Identity Toolkit
// REST endpoint because the Admin SDK has no password sign-in.
type Firebase struct {
	client         *fbauth.Client
	apiKey         string
	httpClient     *http.Client
	signInEndpoint string
}

var _ auth.IdentityProvider = (*Firebase)(nil)

// NewFirebase builds the adapter from a service-account credentials file and
// the project web API key used for REST sign-in.
func NewFirebase(ctx context.Context, credentialsFile, apiKey string, timeout time.Duration) (*Firebase, error) {
	if credentialsFile == "" || apiKey == "" {
		return nil, fmt.Errorf("identity: firebase credentials and api key are required")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("identity: init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: init firebase auth client: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Firebase{
		client:         client,
		apiKey:         apiKey,
		httpClient:     &http.Client{Timeout: timeout},
		signInEndpoint: defaultSignInEndpoint,
	}, nil
}

func (f *Firebase) CreateUser(ctx context.Context, email, password, displayName string) (string, error) {
	params := (&fbauth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName).
		EmailVerified(false)
	rec, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return "", fmt.Errorf("%w: email already registered with identity provider", auth.ErrConflict)
		}
		return "", fmt.Errorf("identity: create user: %w", err)
	}
	return rec.UID, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// SignIn verifies an email/password pair against the Identity Toolkit REST
// API. Every rejection maps to the same Unauthorized error.
func (f *Firebase) SignIn(ctx context.Context, email, password string) error {
	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return err
	}
	url := f.signInEndpoint + "?key=" + f.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: identity provider unreachable", auth.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: invalid credentials", auth.ErrUnauthorized)
	}
	return nil
}

func (f *Firebase) UpdatePassword(ctx context.Context, uid, newPassword string) error {
	params := (&fbauth.UserToUpdate{}).Password(newPassword)
	if _, err := f.client.UpdateUser(ctx, uid, params); err != nil {
		if fbauth.IsUserNotFound(err) {
			return fmt.Errorf("%w: identity account not found", auth.ErrNotFound)
		}
		return fmt.Errorf("identity: update password: %w", err)
	}
	return nil
}

func (f *Firebase) VerifyIDToken(ctx context.Context, idToken string) (map[string]any, error) {
	tok, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id token rejected", auth.ErrTokenInvalid)
	}
	claims := make(map[string]any, len(tok.Claims)+1)
	for k, v := range tok.Claims {
		claims[k] = v
	}
	claims["uid"] = tok.UID
	return claims, nil
}

func (f *Firebase) PasswordResetLink(ctx context.Context, email string) (string, error) {
	link, err := f.client.PasswordResetLink(ctx, email)
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return "", fmt.Errorf("%w: identity account not found", auth.ErrNotFound)
		}
		return "", fmt.Errorf("identity: password reset link: %w", err)
	}
	return link, nil
}
