package auth

import "time"

const (
	// UserStatusActive is the only status allowed to authenticate.
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"

	// AdminRoleName is the role created for the first user of a business.
	AdminRoleName = "Admin"

	defaultSubscriptionPlan = "free"
	defaultBusinessStatus   = "active"
)

// Business is the tenant entity owning users, roles, and channel data.
type Business struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Website          string            `json:"website,omitempty"`
	Industry         string            `json:"industry,omitempty"`
	SubscriptionPlan string            `json:"subscription_plan"`
	Status           string            `json:"status"`
	ContactInfo      map[string]string `json:"contact_info,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// UserMetadata carries the credential-lifecycle state stored alongside a user.
// TokenVersion gates every refresh token issued for the user; ResetToken holds
// the SHA-256 hash of an outstanding reset token, never the raw value.
type UserMetadata struct {
	TokenVersion     int        `json:"tokenVersion"`
	ResetToken       *string    `json:"resetToken,omitempty"`
	ResetTokenExpiry *time.Time `json:"resetTokenExpiry,omitempty"`
}

// User is a human account scoped to exactly one business.
type User struct {
	ID                string       `json:"id"`
	BusinessID        string       `json:"business_id"`
	Email             string       `json:"email"`
	FirebaseUID       string       `json:"-"`
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	Status            string       `json:"status"`
	EmailVerified     bool         `json:"email_verified"`
	IsPasswordCreated bool         `json:"is_password_created"`
	Metadata          UserMetadata `json:"-"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Role groups a permission map under a business-scoped name.
// Names are unique per business; the Admin role is created lazily during
// registration and treated as an immutable template afterwards.
type Role struct {
	ID          string        `json:"id"`
	BusinessID  string        `json:"business_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionMap `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Account is a user together with their resolved roles and permissions, the
// shape returned by login/refresh/me.
type Account struct {
	User        *User         `json:"user"`
	Roles       []Role        `json:"roles"`
	Permissions PermissionMap `json:"permissions"`
}
