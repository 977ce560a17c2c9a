package oauth

import (
	"testing"
	"time"

	"github.com/example/jwtauth/internal/clock"
	"github.com/example/jwtauth/internal/credentials"
	"github.com/example/jwtauth/internal/token"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1700000000, 0)

type fixture struct {
	clock  *clock.Fake
	codec  *token.Codec
	store  *credentials.Store
	issuer *Issuer
	guard  *Guard
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	reg := credentials.DemoRegistry()
	reg.Clients = append(reg.Clients, credentials.ClientApplication{
		ID:          "reader",
		Secret:      "reader-secret",
		GrantTypes:  []string{"client_credentials"},
		Scopes:      []string{"foobar_scope"},
		ResourceIDs: []string{"my_resource_id"},
	}, credentials.ClientApplication{
		ID:          "other",
		Secret:      "other-secret",
		GrantTypes:  []string{credentials.GrantPassword},
		Scopes:      []string{"other_scope", "foobar_scope"},
		ResourceIDs: []string{"other_resource"},
	})
	store, err := credentials.NewStore(reg)
	require.NoError(t, err)
	codec, err := token.NewCodec([]byte("foobar"))
	require.NoError(t, err)
	clk := clock.NewFake(epoch)

	issuer, err := NewIssuer(store, codec, clk, ttl, WithIDGenerator(func() string { return "fixed-jti" }))
	require.NoError(t, err)
	guard, err := NewGuard(codec, clk, "my_resource_id", "foobar_scope")
	require.NoError(t, err)
	return &fixture{clock: clk, codec: codec, store: store, issuer: issuer, guard: guard}
}

func validRequest() TokenRequest {
	return TokenRequest{
		ClientAuth:        true,
		ClientID:          "my_client_username",
		ClientSecret:      "my_client_password",
		GrantType:         "password",
		Username:          "hdampf",
		Password:          "wert123$",
		RequestedClientID: "my_client_username",
		Scope:             "foobar_scope",
	}
}
