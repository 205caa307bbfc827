package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth core. All
// mutations are durable; WithinTx scopes a group of writes to one
// transaction that is invisible to other readers until commit.
type Store interface {
	// CreateBusiness inserts a tenant, applying the subscription_plan and
	// status defaults when unset.
	CreateBusiness(ctx context.Context, b *Business) error

	// CreateUser inserts a user with status "active", email_verified=false
	// and metadata {tokenVersion: 0}. A duplicate email fails with
	// ErrConflict; callers pre-check the email before opening a transaction.
	CreateUser(ctx context.Context, u *User) error

	// GetOrCreateAdminRole upserts the business's Admin role with the
	// full-access permission map. Idempotent under the unique constraint on
	// (business_id, name).
	GetOrCreateAdminRole(ctx context.Context, businessID string) (*Role, error)

	// AssignRole relates a user to a role, ignoring duplicates.
	AssignRole(ctx context.Context, userID, roleID string) error

	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)

	// FindUserByResetToken looks a user up by the stored reset token hash.
	// Expired tokens are treated as not found.
	FindUserByResetToken(ctx context.Context, tokenHash string) (*User, error)

	// UserRoles returns every role held by the user.
	UserRoles(ctx context.Context, userID string) ([]Role, error)

	SaveResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error
	ClearResetToken(ctx context.Context, userID string) error

	// IncrementTokenVersion bumps metadata.tokenVersion in a single atomic
	// update statement, silently invalidating all outstanding refresh tokens.
	IncrementTokenVersion(ctx context.Context, userID string) error

	// MarkPasswordCreated flips is_password_created once the user has set a
	// real password through the reset flow.
	MarkPasswordCreated(ctx context.Context, userID string) error

	// WithinTx runs fn against a store whose writes share one transaction.
	// fn returning an error rolls everything back.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// Blacklist is the explicit denylist of revoked access tokens. It is checked
// on every authenticated request as a point lookup; entries expire with the
// token they revoke. This mechanism is intentionally separate from the
// per-user tokenVersion counter, which revokes at a coarser granularity.
type Blacklist interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error

	// IsRevoked fails with ErrServiceUnavailable when the backing store is
	// unreachable so callers can fail closed.
	IsRevoked(ctx context.Context, token string) (bool, error)
}
