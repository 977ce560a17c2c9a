// Package oauth implements the password grant token issuer and the access
// guard that protects resources with the issued bearer tokens.
package oauth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/jwtauth/internal/clock"
	"github.com/example/jwtauth/internal/credentials"
	"github.com/example/jwtauth/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CredentialStore authenticates clients and resource owners.
type CredentialStore interface {
	AuthenticateClient(id, secret string) (credentials.ClientApplication, error)
	AuthenticateUser(username, password string) (credentials.UserAccount, error)
}

// Encoder signs access token claims.
type Encoder interface {
	Encode(claims *token.Claims) (string, error)
}

// TokenRequest is a token endpoint call. ClientID and ClientSecret come from
// the transport (HTTP basic auth); the rest are grant parameters.
type TokenRequest struct {
	ClientAuth   bool
	ClientID     string
	ClientSecret string

	GrantType         string
	Username          string
	Password          string
	RequestedClientID string
	Scope             string
}

// TokenResponse is the JSON body of a successful token request.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
	JTI         string `json:"jti"`
}

// Issued is the outcome of a successful issuance.
type Issued struct {
	Response TokenResponse
	Claims   *token.Claims
}

// Issuer runs the password grant. It holds no mutable state.
type Issuer struct {
	store  CredentialStore
	enc    Encoder
	clock  clock.Clock
	ttl    time.Duration
	issuer string
	newID  func() string
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) { i.issuer = name }
}

// WithIDGenerator replaces the jti generator.
func WithIDGenerator(fn func() string) IssuerOption {
	return func(i *Issuer) { i.newID = fn }
}

// NewIssuer returns an Issuer minting tokens valid for ttl, truncated to whole seconds.
func NewIssuer(store CredentialStore, enc Encoder, clk clock.Clock, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if store == nil || enc == nil || clk == nil {
		return nil, errors.New("issuer: store, encoder and clock are required")
	}
	ttl = ttl.Truncate(time.Second)
	if ttl < time.Second {
		return nil, fmt.Errorf("issuer: token ttl must be at least 1s, got %s", ttl)
	}
	i := &Issuer{
		store: store,
		enc:   enc,
		clock: clk,
		ttl:   ttl,
		newID: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue authenticates the client and the user and mints an access token.
// It either returns a token or an *Error; nothing is recorded either way.
func (i *Issuer) Issue(req TokenRequest) (*Issued, error) {
	if !req.ClientAuth || req.ClientID == "" {
		return nil, newError(ErrInvalidClient, "Full authentication is required to access this resource")
	}
	if err := checkRequired(req); err != nil {
		return nil, err
	}

	client, err := i.store.AuthenticateClient(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, newError(ErrInvalidClient, "Bad client credentials")
	}
	if req.RequestedClientID != client.ID {
		return nil, newError(ErrInvalidClient, "Given client ID does not match authenticated client")
	}
	if err := checkGrant(client, req.GrantType); err != nil {
		return nil, err
	}

	user, err := i.store.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		return nil, newError(ErrInvalidUser, "Bad credentials")
	}

	scopes, err := checkScope(client, req.Scope)
	if err != nil {
		return nil, err
	}

	claims := i.mint(client, user, scopes)
	signed, err := i.enc.Encode(claims)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	return &Issued{
		Response: TokenResponse{
			AccessToken: signed,
			TokenType:   token.TypeBearer,
			Scope:       strings.Join(scopes, " "),
			ExpiresIn:   int64(i.ttl / time.Second),
			JTI:         claims.ID,
		},
		Claims: claims,
	}, nil
}

func checkRequired(req TokenRequest) error {
	var missing []string
	for _, p := range []struct{ name, value string }{
		{"grant_type", req.GrantType},
		{"username", req.Username},
		{"password", req.Password},
		{"client_id", req.RequestedClientID},
		{"scope", req.Scope},
	} {
		if strings.TrimSpace(p.value) == "" {
			missing = append(missing, p.name)
		}
	}
	if len(missing) > 0 {
		return newError(ErrMalformedRequest, "Missing required parameter(s): "+strings.Join(missing, ", "))
	}
	return nil
}

func checkGrant(client credentials.ClientApplication, grantType string) error {
	if grantType != credentials.GrantPassword {
		return newError(ErrUnsupportedGrant, "Unsupported grant type: "+grantType)
	}
	if !client.AllowsGrant(grantType) {
		return newError(ErrUnauthorizedClient, "Unauthorized grant type: "+grantType)
	}
	return nil
}

// checkScope parses a space delimited scope parameter and requires every
// entry to be configured for the client.
func checkScope(client credentials.ClientApplication, raw string) ([]string, error) {
	var scopes []string
	for _, s := range strings.Fields(raw) {
		if !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}
	if !client.AllowsScopes(scopes) {
		return nil, newError(ErrInvalidScope, "Invalid scope: "+raw)
	}
	return scopes, nil
}

func (i *Issuer) mint(client credentials.ClientApplication, user credentials.UserAccount, scopes []string) *token.Claims {
	iat := i.clock.Now().Truncate(time.Second)
	var aud jwt.ClaimStrings
	if len(client.ResourceIDs) > 0 {
		aud = jwt.ClaimStrings(slices.Clone(client.ResourceIDs))
	}
	return &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.Username,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(i.ttl)),
			ID:        i.newID(),
		},
		UserName:    user.Username,
		ClientID:    client.ID,
		Scope:       scopes,
		Authorities: authorities(user.Roles, client.Authorities),
		TokenType:   token.TypeBearer,
	}
}

func authorities(sets ...[]string) []string {
	var out []string
	for _, set := range sets {
		out = append(out, set...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
