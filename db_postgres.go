package main

import (
	"database/sql"

	"github.com/example/jwtauth/internal/credentials"
	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func (p *PostgresDB) ListClients() ([]credentials.ClientApplication, error) {
	rows, err := p.db.Query(`SELECT id,secret,grant_types,scopes,resource_ids,authorities FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var clients []credentials.ClientApplication
	for rows.Next() {
		var c credentials.ClientApplication
		if err := rows.Scan(&c.ID, &c.Secret, pq.Array(&c.GrantTypes), pq.Array(&c.Scopes), pq.Array(&c.ResourceIDs), pq.Array(&c.Authorities)); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (p *PostgresDB) CreateClient(c credentials.ClientApplication) error {
	_, err := p.db.Exec(`INSERT INTO clients(id,secret,grant_types,scopes,resource_ids,authorities,created_at) VALUES($1,$2,$3,$4,$5,$6,now())`,
		c.ID, c.Secret, pq.Array(c.GrantTypes), pq.Array(c.Scopes), pq.Array(c.ResourceIDs), pq.Array(c.Authorities))
	return err
}

func (p *PostgresDB) ListUsers() ([]credentials.UserAccount, error) {
	rows, err := p.db.Query(`SELECT username,password,roles FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []credentials.UserAccount
	for rows.Next() {
		var u credentials.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, pq.Array(&u.Roles)); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresDB) CreateUser(u credentials.UserAccount) error {
	_, err := p.db.Exec(`INSERT INTO users(username,password,roles,created_at) VALUES($1,$2,$3,now())`,
		u.Username, u.Password, pq.Array(u.Roles))
	return err
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
