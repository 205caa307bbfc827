package auth

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = "1h"
	defaultRefreshTTL = "7d"

	tokenTypeRefresh = "refresh"
)

// RoleClaim is the role snapshot embedded into access tokens.
type RoleClaim struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TokenMetadata mirrors the user fields dashboards read straight from the
// token without another lookup.
type TokenMetadata struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Status      string `json:"status"`
	IsOnboarded bool   `json:"isOnboarded"`
}

// AccessClaims is the payload of a short-lived access token: identity plus a
// role/permission snapshot taken at issuance time.
type AccessClaims struct {
	UserID      string        `json:"userId"`
	BusinessID  string        `json:"businessId"`
	Email       string        `json:"email"`
	Roles       []RoleClaim   `json:"roles"`
	Permissions PermissionMap `json:"permissions"`
	FirebaseUID string        `json:"firebaseUid,omitempty"`
	Metadata    TokenMetadata `json:"metadata"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. TokenVersion must match
// the user's current metadata.tokenVersion when the token is presented.
type RefreshClaims struct {
	UserID       string `json:"userId"`
	TokenType    string `json:"type"`
	TokenVersion int    `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// TokenPair is the result of token issuance. ExpiresIn is the access token
// lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Tokens mints and validates the two bearer artifacts used by the system.
// Both token kinds are signed HS256 with the shared secret.
type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	expiresIn  int64
	now        func() time.Time
}

// NewTokens builds a token service from the configured TTL strings
// (integer + one of s/m/h/d; anything else falls back to one hour).
func NewTokens(secret, issuer, accessTTL, refreshTTL string) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if accessTTL == "" {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL == "" {
		refreshTTL = defaultRefreshTTL
	}
	return &Tokens{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  ParseTTL(accessTTL),
		refreshTTL: ParseTTL(refreshTTL),
		expiresIn:  ExpiresInSeconds(accessTTL),
		now:        time.Now,
	}, nil
}

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ExpiresInSeconds converts a TTL string like "1h" or "7d" into seconds.
// Unrecognized input falls back to 3600.
func ExpiresInSeconds(ttl string) int64 {
	m := ttlPattern.FindStringSubmatch(ttl)
	if m == nil {
		return 3600
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 3600
	}
	switch m[2] {
	case "s":
		return n
	case "m":
		return n * 60
	case "h":
		return n * 3600
	default:
		return n * 86400
	}
}

// ParseTTL converts a TTL string into a duration using the same rules as
// ExpiresInSeconds.
func ParseTTL(ttl string) time.Duration {
	return time.Duration(ExpiresInSeconds(ttl)) * time.Second
}

// Issue mints an access/refresh pair for the user. The refresh token copies
// the user's current tokenVersion so a later version bump silently revokes it.
func (t *Tokens) Issue(user *User, roles []Role, perms PermissionMap) (TokenPair, error) {
	now := t.now().UTC()

	roleClaims := make([]RoleClaim, 0, len(roles))
	for _, r := range roles {
		roleClaims = append(roleClaims, RoleClaim{ID: r.ID, Name: r.Name, Description: r.Description})
	}

	access := AccessClaims{
		UserID:      user.ID,
		BusinessID:  user.BusinessID,
		Email:       user.Email,
		Roles:       roleClaims,
		Permissions: perms,
		FirebaseUID: user.FirebaseUID,
		Metadata: TokenMetadata{
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Status:      user.Status,
			IsOnboarded: user.IsPasswordCreated,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(t.secret)
	if err != nil {
		return TokenPair{}, err
	}

	refresh := RefreshClaims{
		UserID:       user.ID,
		TokenType:    tokenTypeRefresh,
		TokenVersion: user.Metadata.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
			ID:        uuid.NewString(),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(t.secret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    t.expiresIn,
	}, nil
}

// VerifyAccess validates an access token. Expiry and signature failures are
// reported distinctly so callers can react differently.
func (t *Tokens) VerifyAccess(token string) (*AccessClaims, error) {
	return t.verifyAccess(token, false)
}

// VerifyAccessIgnoringExpiry validates the signature of an access token but
// accepts expired claims. Logout uses this to blacklist a token for its
// remaining theoretical lifetime.
func (t *Tokens) VerifyAccessIgnoringExpiry(token string) (*AccessClaims, error) {
	return t.verifyAccess(token, true)
}

func (t *Tokens) verifyAccess(token string, ignoreExpiry bool) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if ignoreExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, t.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	// Refresh tokens share the signing key but never carry a businessId, so
	// the second check keeps them out of access-token positions.
	if !ok || claims.UserID == "" || claims.BusinessID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and enforces type="refresh".
func (t *Tokens) VerifyRefresh(token string) (*RefreshClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &RefreshClaims{}, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || claims.UserID == "" || claims.TokenType != tokenTypeRefresh {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (t *Tokens) keyFunc(tok *jwt.Token) (any, error) {
	if tok.Method != jwt.SigningMethodHS256 {
		return nil, ErrTokenInvalid
	}
	return t.secret, nil
}
