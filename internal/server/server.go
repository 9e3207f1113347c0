package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"oauth2-tokenserver/internal/auth"
	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/claims"
	"oauth2-tokenserver/internal/events"
	"oauth2-tokenserver/internal/flows"
	"oauth2-tokenserver/internal/handlers"
	"oauth2-tokenserver/internal/hooks"
	"oauth2-tokenserver/internal/introspection"
	"oauth2-tokenserver/internal/issuer"
	"oauth2-tokenserver/internal/metrics"
	"oauth2-tokenserver/internal/middleware"
	"oauth2-tokenserver/internal/store"
	"oauth2-tokenserver/internal/store/types"
	"oauth2-tokenserver/pkg/config"

	"github.com/sirupsen/logrus"
)

// Server holds every wired component of the token server
type Server struct {
	Config        *config.Config
	Clients       *store.ClientStore
	Users         *store.UserStore
	Resources     *store.ResourceStore
	Tokens        types.TokenStore
	Catalog       *catalog.Catalog
	Signer        *auth.Signer
	Issuer        *issuer.Issuer
	Introspection *introspection.Service
	Metrics       *metrics.MetricsCollector

	// Hook customizes token responses. It defaults to the configured custom_response fields.
	Hook *hooks.Runner

	sink events.Sink
	log  *logrus.Logger
}

// Options overrides pieces that are otherwise built from configuration
type Options struct {
	Signer *auth.Signer
	Hook   hooks.Hook
	Sink   events.Sink
}

// New builds the server from configuration
func New(cfg *config.Config, opts Options, log *logrus.Logger) (*Server, error) {
	clients, err := store.LoadClientsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	users, err := store.LoadUsersFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	resources, err := store.LoadResourcesFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load api resources: %w", err)
	}
	log.Infof("✅ Loaded %d clients, %d users, %d api resources", clients.Count(), users.Count(), len(resources.All()))

	cat, err := catalog.New(resources.All(), cfg.IdentityScopes)
	if err != nil {
		return nil, fmt.Errorf("failed to build scope catalog: %w", err)
	}

	signer := opts.Signer
	if signer == nil {
		signer, err = auth.NewSigner(cfg.Security, log)
		if err != nil {
			return nil, err
		}
	}

	sink := opts.Sink
	if sink == nil {
		sink, err = events.NewSink(cfg.Events, log)
		if err != nil {
			return nil, err
		}
	}

	tokens, err := store.NewTokenStore(cfg, log)
	if err != nil {
		sink.Close()
		return nil, err
	}

	registry, err := flows.NewConfiguredRegistry(cfg, cat, users, tokens, log)
	if err != nil {
		tokens.Close()
		sink.Close()
		return nil, err
	}

	hook := opts.Hook
	if hook == nil {
		hook = hooks.NoCustomization{}
		if len(cfg.CustomResponse) > 0 {
			hook = hooks.StaticFields(cfg.CustomResponse)
		}
	}

	mc := metrics.NewMetricsCollector()
	mc.UpdateRegisteredClients(float64(clients.Count()))
	mc.UpdateRegisteredUsers(float64(users.Count()))
	mc.UpdateRegisteredResources(float64(len(resources.All())))

	raiser := events.NewRaiser(sink, log)
	runner := hooks.NewRunner(hook, cfg.Tokens.HookTimeout(), log)
	authTimeout := cfg.Tokens.AuthenticatorTimeout()

	iss := issuer.New(
		auth.NewAuthenticator(clients, cfg.Security.HashCost, authTimeout, log),
		registry,
		claims.NewAssembler(signer.Issuer(), cat,
			time.Duration(cfg.Security.TokenExpirySeconds)*time.Second,
			time.Duration(cfg.Security.IdentityTokenExpirySeconds)*time.Second),
		signer,
		tokens,
		runner,
		raiser,
		mc,
		issuer.Options{
			CustomizeClientErrors: cfg.Tokens.CustomizeClientErrors,
			StoreTimeout:          cfg.Tokens.StoreTimeout(),
			RefreshTokenLifetime:  time.Duration(cfg.Security.RefreshTokenExpirySeconds) * time.Second,
		},
		log,
	)

	svc := introspection.NewService(
		auth.NewAuthenticator(resources, cfg.Security.HashCost, authTimeout, log),
		clients, cat, signer, tokens, raiser, mc, cfg.Tokens.StoreTimeout(), log,
	)

	return &Server{
		Config:        cfg,
		Clients:       clients,
		Users:         users,
		Resources:     resources,
		Tokens:        tokens,
		Catalog:       cat,
		Signer:        signer,
		Issuer:        iss,
		Introspection: svc,
		Metrics:       mc,
		Hook:          runner,
		sink:          sink,
		log:           log,
	}, nil
}

// Handler returns the HTTP routes wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/connect/token", handlers.NewTokenHandler(s.Issuer, s.log))
	mux.Handle("/connect/introspect", handlers.NewIntrospectionHandler(s.Introspection, s.log))
	mux.Handle("/connect/revocation", handlers.NewRevokeHandler(s.Issuer, s.log))
	mux.Handle("/health", handlers.NewHealthHandler(s.Tokens, s.Config.Database.Type,
		s.Clients.Count(), len(s.Resources.All()), s.Metrics, s.log))
	mux.Handle("/metrics", s.Metrics.Handler())
	mux.Handle("/version", handlers.NewVersionHandler(s.Signer.Issuer(), s.Issuer.Registry.GrantTypes(), s.log))

	chain := []func(http.Handler) http.Handler{middleware.WithRequestID}
	if s.Config.Server.TrustProxyHeaders {
		chain = append(chain, middleware.ProxyAware)
	}
	if s.Config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(s.Config.RateLimit.RequestsPerSecond, s.Config.RateLimit.Burst, s.log)
		chain = append(chain, limiter.Middleware)
	}
	chain = append(chain, middleware.Logger(s.log), s.Metrics.Middleware)

	return middleware.Chain(mux, chain...)
}

// RunCleanup removes expired tokens until ctx is done
func (s *Server) RunCleanup(ctx context.Context) {
	interval := time.Duration(s.Config.Database.CleanupIntervalSeconds) * time.Second
	store.RunCleanup(ctx, s.Tokens, interval, s.log)
}

// Close releases the token store and the event sink
func (s *Server) Close() error {
	if err := s.sink.Close(); err != nil {
		s.log.Warnf("⚠️ Failed to close event sink: %v", err)
	}
	return s.Tokens.Close()
}
