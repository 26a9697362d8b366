// Package secrets generates and hashes the credentials the service hands out:
// reviewer bearer tokens (stored as SHA-256) and email verification codes
// (stored as bcrypt).
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	dErrors "intake/pkg/domain-errors"
)

// CodeDigits is the length of an email verification code.
const CodeDigits = 6

// Generate creates a cryptographically secure random secret suitable as a
// bearer token.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the lowercase hex SHA-256 of a bearer token. Bearer
// tokens carry full entropy so a fast hash is enough and allows lookup by
// hash.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two token hashes in constant time.
func EqualHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewCode draws a zero-padded numeric verification code.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("could not generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// HashCode creates a bcrypt hash of a verification code. A zero cost uses
// bcrypt.DefaultCost.
func HashCode(code string, cost int) (string, error) {
	if code == "" {
		return "", dErrors.New(dErrors.CodeValidation, "code cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "code is too long")
		}
		return "", fmt.Errorf("could not hash code: %w", err)
	}
	return string(hashed), nil
}

// VerifyCode checks a plaintext code against a bcrypt hash. A wrong code is
// CodeMismatch; anything else is an internal failure.
func VerifyCode(code, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeMismatch, "verification code does not match")
		}
		return fmt.Errorf("could not verify code: %w", err)
	}
	return nil
}
