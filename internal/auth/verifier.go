// Package auth provides credential hashing and verification.
package auth

import (
	"errors"
	"fmt"

	"github.com/ashureev/fluentcoach/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Verifier hashes passwords for storage and checks them at login.
type Verifier interface {
	Hash(password string) (string, error)
	// Verify returns domain.ErrAuth when password does not match hash.
	Verify(hash, password string) error
}

// BcryptVerifier implements Verifier with bcrypt.
type BcryptVerifier struct {
	cost int
}

// NewBcryptVerifier creates a verifier. A cost of 0 selects bcrypt.DefaultCost.
func NewBcryptVerifier(cost int) *BcryptVerifier {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (v *BcryptVerifier) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("password exceeds %d bytes: %w", MaxPasswordBytes, domain.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify compares password against a bcrypt hash.
func (v *BcryptVerifier) Verify(hash, password string) error {
	if hash == "" {
		return domain.ErrAuth
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.ErrAuth
	}
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}
