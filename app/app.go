package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"medstore-console/apiclient"
	"medstore-console/config"
	"medstore-console/delivery"
	"medstore-console/guard"
	"medstore-console/i18n"
	"medstore-console/kratos"
	"medstore-console/session"
	"medstore-console/tokens"
	"medstore-console/vault"
)

// Backend is a session.Backend whose upstream credentials can be exported
// and stored between page loads.
type Backend interface {
	session.Backend
	Credentials() map[string]string
}

// BackendFactory builds the backend for one browser from its stored
// credentials.
type BackendFactory func(creds vault.Credentials) (Backend, error)

// App holds the application's dependencies and the router.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	vault    vault.Vault
	signer   *tokens.Signer
	guard    *guard.Guard
	catalog  *i18n.Catalog
	backends BackendFactory
	closers  []func() error

	Router http.Handler
}

// Option overrides a dependency, mostly for tests.
type Option func(*App)

// WithVault replaces the credential vault.
func WithVault(v vault.Vault) Option {
	return func(a *App) { a.vault = v }
}

// WithBackendFactory replaces the identity backend.
func WithBackendFactory(f BackendFactory) Option {
	return func(a *App) { a.backends = f }
}

// WithSigner replaces the console cookie signer.
func WithSigner(s *tokens.Signer) Option {
	return func(a *App) { a.signer = s }
}

// New creates the App, configures its dependencies and sets up the router.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	delivery.ParseAllTemplates()

	a := &App{
		cfg:     cfg,
		logger:  logger,
		catalog: i18n.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.vault == nil {
		a.vault = a.configureVault()
	}
	if a.signer == nil {
		signer, err := configureSigner(cfg)
		if err != nil {
			return nil, err
		}
		a.signer = signer
	}
	if a.backends == nil {
		factory, err := NewBackendFactory(cfg)
		if err != nil {
			return nil, err
		}
		a.backends = factory
	}

	table := guard.DefaultTable()
	if cfg.RoutesFile != "" {
		loaded, err := guard.LoadTableFile(cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}
	a.guard = guard.New(table)

	a.Router = delivery.NewRouter(a)
	return a, nil
}

func (a *App) configureVault() vault.Vault {
	if a.cfg.RedisAddr == "" {
		return vault.NewMemory(a.cfg.CredentialTTL)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	a.closers = append(a.closers, rdb.Close)
	return vault.NewRedis(rdb, a.cfg.RedisPrefix, a.cfg.CredentialTTL)
}

func configureSigner(cfg config.Config) (*tokens.Signer, error) {
	if cfg.JWKSFile == "" {
		keys, err := tokens.GenerateKeySet(1)
		if err != nil {
			return nil, err
		}
		slog.Warn("MEDSTORE_JWKS_FILE not set, console cookies will not survive a restart")
		return tokens.NewSigner(keys)
	}
	keys, err := tokens.LoadKeySet(cfg.JWKSFile)
	if err != nil {
		return nil, err
	}
	return tokens.NewSigner(keys)
}

// NewBackendFactory picks the identity backend named by cfg.Backend.
func NewBackendFactory(cfg config.Config) (BackendFactory, error) {
	hc := &http.Client{Timeout: cfg.RequestTimeout}
	switch cfg.Backend {
	case config.BackendKratos:
		client := kratos.NewClient(cfg.KratosURL, hc)
		return func(creds vault.Credentials) (Backend, error) {
			return kratos.New(client, creds), nil
		}, nil
	case config.BackendREST, "":
		return func(creds vault.Credentials) (Backend, error) {
			client, err := apiclient.New(cfg.APIURL,
				apiclient.WithHTTPClient(hc),
				apiclient.WithCredentials(creds),
			)
			if err != nil {
				return nil, err
			}
			return client, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down.
func (a *App) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.cfg.HTTPAddr, "backend", a.cfg.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases external connections.
func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// Guard returns the route guard.
func (a *App) Guard() *guard.Guard {
	return a.guard
}

// Copy returns the user-facing copy matching the request's Accept-Language.
func (a *App) Copy(r *http.Request) *i18n.Copy {
	return a.catalog.For(a.catalog.Match(r.Header.Get("Accept-Language")))
}

// ProviderURL is where the "continue with provider" button navigates.
func (a *App) ProviderURL() string {
	return a.cfg.ProviderLoginURL()
}

// CookieSecure reports whether cookies get the Secure attribute.
func (a *App) CookieSecure() bool {
	return a.cfg.CookieSecure
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
