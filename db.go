package main

import (
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/example/jwtauth/internal/credentials"
)

// DB is the backing source of the client and user registry. It is read once
// at startup; the running server only ever consults the in-memory Store.
type DB interface {
	Init() error
	// Client operations
	ListClients() ([]credentials.ClientApplication, error)
	CreateClient(c credentials.ClientApplication) error
	// User operations
	ListUsers() ([]credentials.UserAccount, error)
	CreateUser(u credentials.UserAccount) error
}

var errExists = errors.New("exists")

// loadRegistry reads every client and user from db.
func loadRegistry(db DB) (credentials.Registry, error) {
	clients, err := db.ListClients()
	if err != nil {
		return credentials.Registry{}, err
	}
	users, err := db.ListUsers()
	if err != nil {
		return credentials.Registry{}, err
	}
	return credentials.Registry{Clients: clients, Users: users}, nil
}

// Memory DB
type MemDB struct {
	mu      sync.Mutex
	clients []credentials.ClientApplication
	users   []credentials.UserAccount
}

func NewMemoryDB(reg credentials.Registry) *MemDB {
	m := &MemDB{}
	m.clients = append(m.clients, reg.Clients...)
	m.users = append(m.users, reg.Users...)
	return m
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) ListClients() ([]credentials.ClientApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]credentials.ClientApplication(nil), m.clients...), nil
}

func (m *MemDB) CreateClient(c credentials.ClientApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.clients {
		if existing.ID == c.ID {
			return errExists
		}
	}
	m.clients = append(m.clients, c)
	return nil
}

func (m *MemDB) ListUsers() ([]credentials.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]credentials.UserAccount(nil), m.users...), nil
}

func (m *MemDB) CreateUser(u credentials.UserAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return errExists
		}
	}
	m.users = append(m.users, u)
	return nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS clients (id TEXT PRIMARY KEY, secret TEXT NOT NULL, grant_types TEXT NOT NULL DEFAULT '', scopes TEXT NOT NULL DEFAULT '', resource_ids TEXT NOT NULL DEFAULT '', authorities TEXT NOT NULL DEFAULT '', created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS users (username TEXT PRIMARY KEY, password TEXT NOT NULL, roles TEXT NOT NULL DEFAULT '', created_at TEXT);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// sqlite has no array type; lists are stored space separated.
func joinList(v []string) string  { return strings.Join(v, " ") }
func splitList(v string) []string { return strings.Fields(v) }

func (s *SQLiteDB) ListClients() ([]credentials.ClientApplication, error) {
	rows, err := s.db.Query(`SELECT id,secret,grant_types,scopes,resource_ids,authorities FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var clients []credentials.ClientApplication
	for rows.Next() {
		var c credentials.ClientApplication
		var grants, scopes, resources, authorities string
		if err := rows.Scan(&c.ID, &c.Secret, &grants, &scopes, &resources, &authorities); err != nil {
			return nil, err
		}
		c.GrantTypes = splitList(grants)
		c.Scopes = splitList(scopes)
		c.ResourceIDs = splitList(resources)
		c.Authorities = splitList(authorities)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *SQLiteDB) CreateClient(c credentials.ClientApplication) error {
	_, err := s.db.Exec(`INSERT INTO clients(id,secret,grant_types,scopes,resource_ids,authorities,created_at) VALUES(?,?,?,?,?,?,datetime('now'))`,
		c.ID, c.Secret, joinList(c.GrantTypes), joinList(c.Scopes), joinList(c.ResourceIDs), joinList(c.Authorities))
	return err
}

func (s *SQLiteDB) ListUsers() ([]credentials.UserAccount, error) {
	rows, err := s.db.Query(`SELECT username,password,roles FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []credentials.UserAccount
	for rows.Next() {
		var u credentials.UserAccount
		var roles string
		if err := rows.Scan(&u.Username, &u.Password, &roles); err != nil {
			return nil, err
		}
		u.Roles = splitList(roles)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteDB) CreateUser(u credentials.UserAccount) error {
	_, err := s.db.Exec(`INSERT INTO users(username,password,roles,created_at) VALUES(?,?,?,datetime('now'))`,
		u.Username, u.Password, joinList(u.Roles))
	return err
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
