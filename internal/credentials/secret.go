package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret returns a bcrypt hash suitable for storing as a client secret or user password.
func HashSecret(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(b), err
}

// IsHashed reports whether stored is a bcrypt hash.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

// matchSecret compares presented against stored without leaking length or prefix
// information through timing. Plaintext values are compared as SHA-256 digests.
func matchSecret(stored, presented string) bool {
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// decoyFor builds a stored secret of the same kind as the registry's secrets,
// compared against when an identifier is unknown.
func decoyFor(secrets []string) (string, error) {
	for _, s := range secrets {
		if !IsHashed(s) {
			continue
		}
		cost, err := bcrypt.Cost([]byte(s))
		if err != nil {
			return "", err
		}
		b, err := bcrypt.GenerateFromPassword([]byte("decoy"), cost)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "\x00decoy", nil
}
