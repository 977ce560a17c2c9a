package main

import (
	"errors"
	"fmt"

	cfg "github.com/example/jwtauth/internal/config"
	"github.com/example/jwtauth/internal/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSeedCommand(v *viper.Viper) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load clients and users from the seed file into the sqlite or postgres registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.Load(v)
			if err != nil {
				return err
			}
			if c.DBAdapter == "memory" {
				return errors.New("seed requires DB_ADAPTER=sqlite or DB_ADAPTER=postgres")
			}
			if c.SeedFile == "" {
				return errors.New("--seed-file or SEED_FILE is required")
			}
			log, err := newLogger(c.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			reg, err := credentials.LoadRegistryFile(c.SeedFile)
			if err != nil {
				return err
			}
			if !plain {
				if reg, err = hashRegistry(reg); err != nil {
					return err
				}
			}
			db, err := openDB(c, log)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := seedRegistry(db, reg); err != nil {
				return err
			}
			log.Infow("registry seeded", "clients", len(reg.Clients), "users", len(reg.Users))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plaintext", false, "store secrets as given instead of bcrypt hashing them")
	return cmd
}

// hashRegistry bcrypt hashes every secret that is not already a hash.
func hashRegistry(reg credentials.Registry) (credentials.Registry, error) {
	out := credentials.Registry{
		Clients: make([]credentials.ClientApplication, len(reg.Clients)),
		Users:   make([]credentials.UserAccount, len(reg.Users)),
	}
	for i, c := range reg.Clients {
		h, err := hashIfPlain(c.Secret)
		if err != nil {
			return credentials.Registry{}, fmt.Errorf("client %q: %w", c.ID, err)
		}
		c.Secret = h
		out.Clients[i] = c
	}
	for i, u := range reg.Users {
		h, err := hashIfPlain(u.Password)
		if err != nil {
			return credentials.Registry{}, fmt.Errorf("user %q: %w", u.Username, err)
		}
		u.Password = h
		out.Users[i] = u
	}
	return out, nil
}

func hashIfPlain(secret string) (string, error) {
	if credentials.IsHashed(secret) {
		return secret, nil
	}
	return credentials.HashSecret(secret)
}

func seedRegistry(db DB, reg credentials.Registry) error {
	// validate before writing anything
	if _, err := credentials.NewStore(reg); err != nil {
		return err
	}
	for _, c := range reg.Clients {
		if err := db.CreateClient(c); err != nil {
			return fmt.Errorf("creating client %q: %w", c.ID, err)
		}
	}
	for _, u := range reg.Users {
		if err := db.CreateUser(u); err != nil {
			return fmt.Errorf("creating user %q: %w", u.Username, err)
		}
	}
	return nil
}
