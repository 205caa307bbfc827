package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"unicode"
)

const minPasswordLength = 8

// PasswordCheck reports the outcome of password policy validation. Every
// unmet rule is collected so the caller can surface all of them at once.
type PasswordCheck struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidatePassword applies the account password policy: minimum length plus
// at least one uppercase letter, lowercase letter, digit, and symbol.
func ValidatePassword(password string) PasswordCheck {
	var errs []string
	if len(password) < minPasswordLength {
		errs = append(errs, "password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "password must contain at least one number")
	}
	if !hasSymbol {
		errs = append(errs, "password must contain at least one special character")
	}
	return PasswordCheck{IsValid: len(errs) == 0, Errors: errs}
}

// NewResetToken returns a random reset token and the hex-encoded SHA-256
// hash stored in its place. The raw value leaves the process only through
// the email side channel.
func NewResetToken() (raw, hash string, err error) {
	raw, err = randomSecret(32)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// HashToken hashes a raw token the way reset tokens are persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomPassword generates the throwaway password used when the identity
// account is created during registration. Nobody ever learns it; the suffix
// keeps it acceptable to any provider-side complexity rules.
func RandomPassword() (string, error) {
	secret, err := randomSecret(24)
	if err != nil {
		return "", err
	}
	return secret + "aZ9!", nil
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
