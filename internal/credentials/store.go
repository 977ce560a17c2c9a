// Package credentials verifies client application and end-user credentials
// against a registry that is fixed for the lifetime of the process.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidClient = errors.New("invalid client credentials")
	ErrInvalidUser   = errors.New("invalid user credentials")
)

// Store is safe for concurrent use; it is never mutated after NewStore returns.
type Store struct {
	clients     map[string]ClientApplication
	users       map[string]UserAccount
	clientDecoy string
	userDecoy   string
}

// NewStore validates the registry and builds an immutable Store from it.
func NewStore(reg Registry) (*Store, error) {
	s := &Store{
		clients: make(map[string]ClientApplication, len(reg.Clients)),
		users:   make(map[string]UserAccount, len(reg.Users)),
	}
	clientSecrets := make([]string, 0, len(reg.Clients))
	for _, c := range reg.Clients {
		if c.ID == "" {
			return nil, errors.New("client id must not be empty")
		}
		if c.Secret == "" {
			return nil, fmt.Errorf("client %q: secret must not be empty", c.ID)
		}
		if _, dup := s.clients[c.ID]; dup {
			return nil, fmt.Errorf("duplicate client %q", c.ID)
		}
		s.clients[c.ID] = c.clone()
		clientSecrets = append(clientSecrets, c.Secret)
	}
	userSecrets := make([]string, 0, len(reg.Users))
	for _, u := range reg.Users {
		if u.Username == "" {
			return nil, errors.New("username must not be empty")
		}
		if u.Password == "" {
			return nil, fmt.Errorf("user %q: password must not be empty", u.Username)
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		s.users[u.Username] = u.clone()
		userSecrets = append(userSecrets, u.Password)
	}

	var err error
	if s.clientDecoy, err = decoyFor(clientSecrets); err != nil {
		return nil, fmt.Errorf("client secrets: %w", err)
	}
	if s.userDecoy, err = decoyFor(userSecrets); err != nil {
		return nil, fmt.Errorf("user passwords: %w", err)
	}
	return s, nil
}

// AuthenticateClient returns the client registered under id if secret matches.
// Unknown ids and wrong secrets both yield ErrInvalidClient.
func (s *Store) AuthenticateClient(id, secret string) (ClientApplication, error) {
	c, ok := s.clients[id]
	if !ok {
		matchSecret(s.clientDecoy, secret)
		return ClientApplication{}, ErrInvalidClient
	}
	if !matchSecret(c.Secret, secret) {
		return ClientApplication{}, ErrInvalidClient
	}
	return c.clone(), nil
}

// AuthenticateUser returns the account for username if password matches.
// Unknown users and wrong passwords both yield ErrInvalidUser.
func (s *Store) AuthenticateUser(username, password string) (UserAccount, error) {
	u, ok := s.users[username]
	if !ok {
		matchSecret(s.userDecoy, password)
		return UserAccount{}, ErrInvalidUser
	}
	if !matchSecret(u.Password, password) {
		return UserAccount{}, ErrInvalidUser
	}
	return u.clone(), nil
}

// Counts returns the number of registered clients and users.
func (s *Store) Counts() (clients, users int) {
	return len(s.clients), len(s.users)
}

// LoadRegistryFile reads a YAML registry of clients and users.
func LoadRegistryFile(path string) (Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("reading registry %s: %w", path, err)
	}
	var reg Registry
	if err := yaml.Unmarshal(b, &reg); err != nil {
		return Registry{}, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	return reg, nil
}
