package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

// placeholderHash is compared against when the username is unknown so a
// failed login costs the same either way.
var placeholderHash, _ = bcrypt.GenerateFromPassword([]byte("placeholder-password"), bcrypt.DefaultCost)

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword maps any mismatch to ErrInvalidCredentials. An empty hash
// stands for an unknown user.
func checkPassword(hash, password string) error {
	stored := []byte(hash)
	if hash == "" {
		stored = placeholderHash
	}
	err := bcrypt.CompareHashAndPassword(stored, []byte(password))
	if hash == "" || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}
