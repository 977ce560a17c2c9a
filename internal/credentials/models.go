package credentials

import "slices"

// GrantPassword is the only grant type this server mints tokens for.
const GrantPassword = "password"

// ClientApplication is a registered client allowed to request tokens.
type ClientApplication struct {
	ID          string   `yaml:"id"`
	Secret      string   `yaml:"secret"` // bcrypt hash or plaintext
	GrantTypes  []string `yaml:"grant_types"`
	Scopes      []string `yaml:"scopes"`
	ResourceIDs []string `yaml:"resource_ids"`
	Authorities []string `yaml:"authorities"`
}

// AllowsGrant reports whether the client is configured for grantType.
func (c ClientApplication) AllowsGrant(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// AllowsScopes reports whether every requested scope is configured for the client.
func (c ClientApplication) AllowsScopes(requested []string) bool {
	if len(requested) == 0 {
		return false
	}
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

func (c ClientApplication) clone() ClientApplication {
	c.GrantTypes = slices.Clone(c.GrantTypes)
	c.Scopes = slices.Clone(c.Scopes)
	c.ResourceIDs = slices.Clone(c.ResourceIDs)
	c.Authorities = slices.Clone(c.Authorities)
	return c
}

// UserAccount is a resource owner that may sign in through a client.
type UserAccount struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"` // bcrypt hash or plaintext
	Roles    []string `yaml:"roles"`
}

func (u UserAccount) clone() UserAccount {
	u.Roles = slices.Clone(u.Roles)
	return u
}

// Registry is the full set of clients and users loaded at startup.
type Registry struct {
	Clients []ClientApplication `yaml:"clients"`
	Users   []UserAccount       `yaml:"users"`
}

// DemoRegistry returns the built-in registry used when no other source is configured.
func DemoRegistry() Registry {
	return Registry{
		Clients: []ClientApplication{{
			ID:          "my_client_username",
			Secret:      "my_client_password",
			GrantTypes:  []string{GrantPassword},
			Scopes:      []string{"foobar_scope"},
			ResourceIDs: []string{"my_resource_id"},
			Authorities: []string{"ROLE_ADMIN"},
		}},
		Users: []UserAccount{
			{Username: "hdampf", Password: "wert123$", Roles: []string{"ROLE_USER"}},
			{Username: "fschmidt", Password: "wert123$", Roles: []string{"ROLE_USER", "ROLE_ADMIN"}},
		},
	}
}
