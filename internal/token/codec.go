// Package token encodes access token claims into compact HS256 JWTs and
// verifies them again. Expiry and scope policy live with the caller.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidKey       = errors.New("signing key must not be empty")
	ErrInvalidClaims    = errors.New("invalid claims")
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
)

var method = jwt.SigningMethodHS256

// Codec signs and verifies tokens with a single symmetric key.
type Codec struct {
	key    []byte
	parser *jwt.Parser
}

// NewCodec returns a Codec for key. The key is copied.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	return &Codec{
		key: append([]byte(nil), key...),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// Encode signs claims. The header carries only the algorithm, so the first
// segment of every token is the encoding of {"alg":"HS256"}.
func (c *Codec) Encode(claims *Claims) (string, error) {
	if claims == nil || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: iat and exp are required", ErrInvalidClaims)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", fmt.Errorf("%w: exp must be after iat", ErrInvalidClaims)
	}
	t := jwt.NewWithClaims(method, claims)
	delete(t.Header, "typ")
	s, err := t.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return s, nil
}

// Decode verifies the signature of token and returns its claims. The MAC is
// checked before the header or payload are interpreted.
func (c *Codec) Decode(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}
	var sig []byte
	for i, p := range parts {
		b, err := c.parser.DecodeSegment(p)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrMalformed, i, err)
		}
		if i == 2 {
			sig = b
		}
	}
	if err := method.Verify(parts[0]+"."+parts[1], sig, c.key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}
	return claims, nil
}
