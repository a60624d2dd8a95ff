package identity

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	dErrors "edms/pkg/domain-errors"
)

// MinSecretLength is the shortest accepted signing credential.
const MinSecretLength = 12

// HashSecret creates a bcrypt hash of a signing credential.
func HashSecret(secret string) (string, error) {
	if utf8.RuneCountInString(secret) < MinSecretLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "secret must be at least %d characters", MinSecretLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// VerifySecret checks a plaintext credential against its bcrypt hash.
func VerifySecret(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeReauthFailed, "credential mismatch")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}
