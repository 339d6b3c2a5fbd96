package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrSecretTooShort = errors.New("callback secret must be at least 16 characters")
)

const (
	bcryptCost      = 12
	minSecretLength = 16
)

// HashCallbackSecret hashes the shared secret the payment gateway presents on
// callbacks. Only the hash is configured on the API.
func HashCallbackSecret(secret string) (string, error) {
	if len(secret) < minSecretLength {
		return "", ErrSecretTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckCallbackSecret compares a presented secret with its hash
func CheckCallbackSecret(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}
