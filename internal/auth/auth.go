// Package auth provides the password gate and config ID generation.
// Credentials are bcrypt hashes stored on the configuration record; the
// setup code gates config creation only.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	BcryptCost = 12

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 4
)

// ErrPasswordTooShort is returned when a new password is below the minimum length.
var ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)

const (
	idLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idDigits  = "0123456789"
)

// HashPassword hashes a password using bcrypt. It rejects passwords below
// the minimum length.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifySetupCode compares a presented setup code against the configured
// one in constant time.
func VerifySetupCode(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// NewConfigID generates a shareable config ID of the form "WXYZ-1234"
// (4 random uppercase letters, a dash, 4 random digits).
func NewConfigID() (string, error) {
	letters, err := randomChars(idLetters, 4)
	if err != nil {
		return "", err
	}
	digits, err := randomChars(idDigits, 4)
	if err != nil {
		return "", err
	}
	return letters + "-" + digits, nil
}

func randomChars(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
