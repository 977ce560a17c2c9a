package token

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TypeBearer is the token_type marker embedded in every access token.
const TypeBearer = "bearer"

// Claims is the payload of an access token. Field order fixes the JSON layout
// and therefore the signed bytes.
type Claims struct {
	jwt.RegisteredClaims
	UserName    string   `json:"user_name,omitempty"`
	ClientID    string   `json:"client_id"`
	Scope       []string `json:"scope"`
	Authorities []string `json:"authorities,omitempty"`
	TokenType   string   `json:"token_type"`
}

// HasScope reports whether scope was granted to the token.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scope, scope)
}

// HasAudience reports whether the token was minted for the resource id.
func (c *Claims) HasAudience(resourceID string) bool {
	return slices.Contains(c.Audience, resourceID)
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ExpiredAt reports whether the token is no longer valid at now.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.Expiry())
}
