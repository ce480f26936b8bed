package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/time-estimator/internal/apperror"
)

// Password length limits.
//
// bcrypt silently truncates input after 72 bytes, so longer passwords are
// rejected instead of being accepted and then partly ignored.
const (
	MinPasswordLength = 8
	maxPasswordBytes  = 72
)

// DefaultPasswordCost is the bcrypt work factor: about 250ms per hash on a
// modern machine. Tests use bcrypt.MinCost.
const DefaultPasswordCost = 12

// ErrInvalidPassword is returned by Verify when the password does not match.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService hashes and verifies account passwords with bcrypt.
//
// The stored hash is self-contained ($2a$<cost>$<salt><hash>), so the
// passwordHash field is all an account needs.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService. A cost outside bcrypt's
// range falls back to DefaultPasswordCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return &PasswordService{cost: cost}
}

// Hash checks the password against the length rules and hashes it.
// Rule violations are apperror.ErrValidation on the "password" field.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(plaintext) > maxPasswordBytes {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", maxPasswordBytes))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrInvalidPassword when
// it does not. bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
