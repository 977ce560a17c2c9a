package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/jwtauth/internal/clock"
	cfg "github.com/example/jwtauth/internal/config"
	"github.com/example/jwtauth/internal/credentials"
	"github.com/example/jwtauth/internal/metrics"
	"github.com/example/jwtauth/internal/oauth"
	"github.com/example/jwtauth/internal/token"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"
)

type App struct {
	Config      *cfg.Config
	DB          DB
	Store       *credentials.Store
	Issuer      *oauth.Issuer
	Guard       *oauth.Guard
	Metrics     *metrics.Recorder
	Log         *zap.SugaredLogger
	rateLimiter *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("write json", "error", err)
	}
}

// newApp loads the registry from db once and wires the token engine around it.
func newApp(c *cfg.Config, db DB, clk clock.Clock, log *zap.SugaredLogger) (*App, error) {
	reg, err := loadRegistry(db)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	store, err := credentials.NewStore(reg)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	codec, err := token.NewCodec([]byte(c.JwtSecret))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	issuer, err := oauth.NewIssuer(store, codec, clk, c.TokenTTL, oauth.WithIssuerName(c.TokenIssuer))
	if err != nil {
		return nil, err
	}
	guard, err := oauth.NewGuard(codec, clk, c.ResourceID, c.RequiredScope)
	if err != nil {
		return nil, err
	}
	clients, users := store.Counts()
	log.Infow("registry loaded", "clients", clients, "users", users)
	return &App{
		Config:      c,
		DB:          db,
		Store:       store,
		Issuer:      issuer,
		Guard:       guard,
		Metrics:     metrics.New(),
		Log:         log,
		rateLimiter: NewRateLimiter(c.RateLimitPerMinute),
	}, nil
}

// routes is the complete route table.
func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", a.HandleHealth).Methods("GET")
	r.HandleFunc("/ready", a.HandleReady).Methods("GET")
	r.Handle("/metrics", a.Metrics.Handler()).Methods("GET")

	// Authorization server
	as := r.PathPrefix("/oauth").Subrouter()
	as.Use(a.CORS)
	as.Use(a.RateLimit)
	as.HandleFunc("/token", a.HandleToken).Methods("GET", "POST", "OPTIONS")
	as.HandleFunc("/check_token", a.HandleCheckToken).Methods("GET", "POST")

	// Resource server
	r.Handle("/foobar", a.Protect(a.Guard, a.HandleFoobar)).Methods("GET")

	return r
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// openDB returns the registry source selected by DB_ADAPTER.
func openDB(c *cfg.Config, log *zap.SugaredLogger) (DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		return NewSQLiteDB(c.SQLiteFile)
	case "postgres":
		log.Info("applying database migrations")
		if err := ApplyMigrations("./migrations", c.PostgresDSN, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		p, err := NewPostgresDB(c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info("connected to PostgreSQL database")
		return p, nil
	case "memory":
		if c.SeedFile == "" {
			log.Warn("using built-in demo registry (not recommended for production)")
			return NewMemoryDB(credentials.DemoRegistry()), nil
		}
		reg, err := credentials.LoadRegistryFile(c.SeedFile)
		if err != nil {
			return nil, err
		}
		return NewMemoryDB(reg), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s", c.DBAdapter)
	}
}

func closeDB(db DB) {
	if closer, ok := db.(interface{ close() error }); ok {
		_ = closer.close()
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "jwtauth",
		Short:         "Password grant authorization server issuing HS256 access tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfigFile(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("port", "", "HTTP listen port")
	flags.String("db-adapter", "", "registry source: memory, sqlite or postgres")
	flags.String("sqlite-file", "", "sqlite database file")
	flags.String("seed-file", "", "YAML registry of clients and users")
	flags.Duration("token-ttl", 0, "access token lifetime")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	for _, name := range []string{"config", "port", "db-adapter", "sqlite-file", "seed-file", "token-ttl", "log-level"} {
		if err := v.BindPFlag(flagKey(name), flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	cfg.Bind(v)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the authorization and resource server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	})
	root.AddCommand(newSeedCommand(v))
	return root
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func loadConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

func runServe(v *viper.Viper) error {
	c, err := cfg.Load(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return err
	}
	log, err := newLogger(c.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log.Desugar())

	db, err := openDB(c, log)
	if err != nil {
		log.Errorw("registry source init failed", "adapter", c.DBAdapter, "error", err)
		return err
	}
	defer closeDB(db)

	app, err := newApp(c, db, clock.Real(), log)
	if err != nil {
		log.Errorw("startup failed", "error", err)
		return err
	}

	srv := &http.Server{Handler: app.routes(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("starting server", "port", c.Port, "adapter", c.DBAdapter, "token_ttl", c.TokenTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Errorw("server error", "error", err)
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("shutdown failed", "error", err)
		return err
	}
	log.Info("server exited properly")
	return nil
}
