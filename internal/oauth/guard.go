package oauth

import (
	"errors"
	"strings"
	"time"

	"github.com/example/jwtauth/internal/clock"
	"github.com/example/jwtauth/internal/token"
)

// Decoder verifies a signed token and returns its claims.
type Decoder interface {
	Decode(tok string) (*token.Claims, error)
}

// Guard decides whether a bearer token grants access to one protected resource.
type Guard struct {
	dec        Decoder
	clock      clock.Clock
	resourceID string
	scope      string
}

// NewGuard returns a Guard requiring scope. An empty resourceID disables the audience check.
func NewGuard(dec Decoder, clk clock.Clock, resourceID, requiredScope string) (*Guard, error) {
	if dec == nil || clk == nil {
		return nil, errors.New("guard: decoder and clock are required")
	}
	if requiredScope == "" {
		return nil, errors.New("guard: required scope must not be empty")
	}
	return &Guard{dec: dec, clock: clk, resourceID: resourceID, scope: requiredScope}, nil
}

// RequiredScope returns the scope a token must carry.
func (g *Guard) RequiredScope() string { return g.scope }

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authorization string) (string, bool) {
	const prefix = "bearer "
	if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(authorization[len(prefix):])
	return tok, tok != ""
}

// Authorize checks the Authorization header value and returns the verified
// claims when every check passes.
func (g *Guard) Authorize(authorization string) (*token.Claims, error) {
	raw, ok := BearerToken(authorization)
	if !ok {
		return nil, newError(ErrNoToken, "Full authentication is required to access this resource")
	}
	claims, err := g.Introspect(raw)
	if err != nil {
		return nil, err
	}
	if err := g.checkAudience(claims); err != nil {
		return nil, err
	}
	if err := g.checkScope(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Introspect verifies the signature and expiry of a raw token without
// applying the resource's audience and scope requirements.
func (g *Guard) Introspect(raw string) (*token.Claims, error) {
	if raw == "" {
		return nil, newError(ErrNoToken, "Token is required")
	}
	claims, err := g.dec.Decode(raw)
	if err != nil {
		return nil, newError(ErrInvalidToken, "Cannot convert access token")
	}
	if err := g.checkExpiry(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (g *Guard) checkExpiry(claims *token.Claims) error {
	if claims.ExpiredAt(g.clock.Now()) {
		return newError(ErrExpired, "Access token expired: "+claims.Expiry().UTC().Format(time.RFC3339))
	}
	return nil
}

func (g *Guard) checkAudience(claims *token.Claims) error {
	if g.resourceID == "" || claims.HasAudience(g.resourceID) {
		return nil
	}
	return newError(ErrInvalidToken, "Invalid token does not contain resource id ("+g.resourceID+")")
}

func (g *Guard) checkScope(claims *token.Claims) error {
	if claims.HasScope(g.scope) {
		return nil
	}
	return newError(ErrInsufficientScope, "Insufficient scope for this resource, requires "+g.scope)
}
