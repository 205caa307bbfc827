package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// registrationResetTTL is the validity of the set-your-password token
	// mailed to freshly registered users.
	registrationResetTTL = 24 * time.Hour

	// resetRequestTTL is the validity of tokens issued via forgot-password.
	resetRequestTTL = time.Hour
)

// IdentityProvider wraps the external identity service that holds the
// canonical password credential. Implementations translate provider errors
// into the local taxonomy; provider-specific types never cross this boundary.
type IdentityProvider interface {
	// CreateUser provisions an identity account and returns its external UID.
	CreateUser(ctx context.Context, email, password, displayName string) (string, error)

	// SignIn verifies an email/password pair. Any rejection surfaces as
	// ErrUnauthorized.
	SignIn(ctx context.Context, email, password string) error

	UpdatePassword(ctx context.Context, uid, newPassword string) error

	// VerifyIDToken validates a provider-issued ID token and returns its
	// claims, failing with ErrTokenInvalid when malformed or expired.
	VerifyIDToken(ctx context.Context, idToken string) (map[string]any, error)

	PasswordResetLink(ctx context.Context, email string) (string, error)
}

// Notification is an email dispatch request handed to the notification sink.
type Notification struct {
	To        string
	Subject   string
	Template  string
	Variables map[string]string
}

// Notifier delivers notifications fire-and-forget; callers log failures and
// move on.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Service coordinates the credential store, identity provider, token service
// and notification sink into the auth protocols.
type Service struct {
	store     Store
	blacklist Blacklist
	provider  IdentityProvider
	tokens    *Tokens
	notifier  Notifier
	log       *zap.SugaredLogger
	now       func() time.Time
	resetURL  string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithNotifier wires the email sink used for welcome and reset mails.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.SugaredLogger) ServiceOption {
	return func(s *Service) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithResetBaseURL sets the dashboard URL that reset tokens are appended to
// in outgoing emails.
func WithResetBaseURL(u string) ServiceOption {
	return func(s *Service) error {
		s.resetURL = strings.TrimRight(strings.TrimSpace(u), "/")
		return nil
	}
}

// NewService constructs the auth service with optional configuration.
func NewService(store Store, blacklist Blacklist, provider IdentityProvider, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil || blacklist == nil || provider == nil || tokens == nil {
		return nil, errors.New("auth: store, blacklist, provider and tokens are required")
	}
	svc := &Service{
		store:     store,
		blacklist: blacklist,
		provider:  provider,
		tokens:    tokens,
		log:       zap.NewNop().Sugar(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterInput is the payload of a business registration.
type RegisterInput struct {
	BusinessName string
	Description  string
	Website      string
	Industry     string
	Email        string
	FirstName    string
	LastName     string
}

// RegistrationResult is what a successful registration produced.
type RegistrationResult struct {
	Business *Business `json:"business"`
	User     *User     `json:"user"`
	Role     *Role     `json:"role"`
}

// Register runs the multi-step registration workflow: duplicate pre-check,
// one local transaction covering business, identity account, user, admin
// role and the hashed set-password token, then a best-effort welcome email
// outside the transaction.
//
// The external identity account created mid-transaction is not deleted when
// a later step fails; see DESIGN.md for the compensating-action decision.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegistrationResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.BusinessName) == "" {
		return nil, fmt.Errorf("%w: business name and email are required", ErrInvalidInput)
	}

	// Duplicate check short-circuits before any transaction is opened.
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var (
		result   RegistrationResult
		rawReset string
	)
	err := s.store.WithinTx(ctx, func(tx Store) error {
		business := &Business{
			Name:        strings.TrimSpace(in.BusinessName),
			Description: strings.TrimSpace(in.Description),
			Website:     strings.TrimSpace(in.Website),
			Industry:    strings.TrimSpace(in.Industry),
		}
		if err := tx.CreateBusiness(ctx, business); err != nil {
			return err
		}

		// The human never learns this password; the reset-token flow below
		// supersedes it immediately.
		throwaway, err := RandomPassword()
		if err != nil {
			return err
		}
		displayName := strings.TrimSpace(in.FirstName + " " + in.LastName)
		uid, err := s.provider.CreateUser(ctx, email, throwaway, displayName)
		if err != nil {
			return err
		}

		user := &User{
			BusinessID:  business.ID,
			Email:       email,
			FirebaseUID: uid,
			FirstName:   strings.TrimSpace(in.FirstName),
			LastName:    strings.TrimSpace(in.LastName),
			Metadata:    UserMetadata{TokenVersion: 0},
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		role, err := tx.GetOrCreateAdminRole(ctx, business.ID)
		if err != nil {
			return err
		}
		if err := tx.AssignRole(ctx, user.ID, role.ID); err != nil {
			return err
		}

		raw, hash, err := NewResetToken()
		if err != nil {
			return err
		}
		expiry := s.now().Add(registrationResetTTL)
		if err := tx.SaveResetToken(ctx, user.ID, hash, expiry); err != nil {
			return err
		}
		user.Metadata.ResetToken = &hash
		user.Metadata.ResetTokenExpiry = &expiry

		rawReset = raw
		result = RegistrationResult{Business: business, User: user, Role: role}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Outside the transaction: failure here never unwinds the registration.
	s.sendEmail(ctx, Notification{
		To:       email,
		Subject:  "Welcome to JustPing — set your password",
		Template: "welcome_set_password",
		Variables: map[string]string{
			"firstName": result.User.FirstName,
			"resetLink": s.resetLink(rawReset),
		},
	})

	return &result, nil
}

// LoginResult bundles the account view with a fresh token pair.
type LoginResult struct {
	Account
	Tokens TokenPair `json:"tokens"`
}

// Login authenticates against the identity provider and issues tokens.
// Every provider-side rejection collapses into a generic Unauthorized so the
// response never reveals which factor failed.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err := s.provider.SignIn(ctx, email, password); err != nil {
		s.log.Debugw("identity sign-in rejected", "email", email, "err", err)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return nil, err
	}
	if user.Status != UserStatusActive {
		return nil, fmt.Errorf("%w: account is not active", ErrForbidden)
	}
	return s.issueFor(ctx, user)
}

// Refresh validates a refresh token, requires its tokenVersion to match the
// user's current counter, and issues a new pair with freshly loaded roles
// and permissions rather than the stale token snapshot.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrUnauthorized)
		}
		return nil, err
	}
	if claims.TokenVersion != user.Metadata.TokenVersion {
		return nil, fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
	}
	if user.Status != UserStatusActive {
		return nil, fmt.Errorf("%w: account is not active", ErrForbidden)
	}
	return s.issueFor(ctx, user)
}

func (s *Service) issueFor(ctx context.Context, user *User) (*LoginResult, error) {
	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	perms := ResolvePermissions(roles)
	pair, err := s.tokens.Issue(user, roles, perms)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Account: Account{User: user, Roles: roles, Permissions: perms},
		Tokens:  pair,
	}, nil
}

// RequestPasswordReset starts the forgot-password flow. It always succeeds
// from the caller's point of view, whether or not the email exists. Internal
// failures are logged and swallowed so the response stays uniform.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Errorw("password reset lookup failed", "err", err)
		}
		return nil
	}
	raw, hash, err := NewResetToken()
	if err != nil {
		s.log.Errorw("password reset token generation failed", "err", err)
		return nil
	}
	if err := s.store.SaveResetToken(ctx, user.ID, hash, s.now().Add(resetRequestTTL)); err != nil {
		s.log.Errorw("password reset token save failed", "err", err)
		return nil
	}
	s.sendEmail(ctx, Notification{
		To:       user.Email,
		Subject:  "Reset your JustPing password",
		Template: "password_reset",
		Variables: map[string]string{
			"firstName": user.FirstName,
			"resetLink": s.resetLink(raw),
		},
	})
	return nil
}

// ResetPassword completes a reset: the raw token is hashed and matched
// server-side, the provider password is updated, the stored token cleared
// and the tokenVersion bumped so every outstanding refresh token dies.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if strings.TrimSpace(rawToken) == "" {
		return fmt.Errorf("%w: reset token is required", ErrNotFound)
	}
	if check := ValidatePassword(newPassword); !check.IsValid {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(check.Errors, "; "))
	}
	user, err := s.store.FindUserByResetToken(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: invalid or expired reset token", ErrNotFound)
		}
		return err
	}
	if err := s.provider.UpdatePassword(ctx, user.FirebaseUID, newPassword); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.ClearResetToken(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.MarkPasswordCreated(ctx, user.ID); err != nil {
			return err
		}
		return tx.IncrementTokenVersion(ctx, user.ID)
	})
}

// ChangePassword re-authenticates the current password as proof of
// possession before updating the provider credential and revoking all
// outstanding refresh tokens.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if check := ValidatePassword(newPassword); !check.IsValid {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(check.Errors, "; "))
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.provider.SignIn(ctx, user.Email, currentPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)
	}
	if err := s.provider.UpdatePassword(ctx, user.FirebaseUID, newPassword); err != nil {
		return err
	}
	return s.store.IncrementTokenVersion(ctx, user.ID)
}

// Logout blacklists the presented access token for its remaining lifetime.
// The signature is still required but expiry is ignored, so an already
// expired token can be revoked for its theoretical remainder.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.tokens.VerifyAccessIgnoringExpiry(rawToken)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(time.Minute)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return s.blacklist.Revoke(ctx, rawToken, expiresAt)
}

// CurrentUser loads the account view for an authenticated user id.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*Account, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Account{User: user, Roles: roles, Permissions: ResolvePermissions(roles)}, nil
}

// Authenticate verifies a bearer access token and gates it through the
// blacklist before producing the request principal. A blacklist outage fails
// closed with ErrServiceUnavailable.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (Principal, error) {
	claims, err := s.tokens.VerifyAccess(rawToken)
	if err != nil {
		return Principal{}, err
	}
	revoked, err := s.blacklist.IsRevoked(ctx, rawToken)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, fmt.Errorf("%w: token has been revoked", ErrUnauthorized)
	}
	return Principal{
		UserID:      claims.UserID,
		BusinessID:  claims.BusinessID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		FirebaseUID: claims.FirebaseUID,
		Metadata:    claims.Metadata,
	}, nil
}

func (s *Service) sendEmail(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.log.Errorw("email dispatch failed", "template", n.Template, "to", n.To, "err", err)
	}
}

func (s *Service) resetLink(rawToken string) string {
	base := s.resetURL
	if base == "" {
		base = "https://app.justping.io/reset-password"
	}
	return base + "?token=" + rawToken
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
