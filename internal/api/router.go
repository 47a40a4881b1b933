package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/fhpereira/acesso/internal/app"
	iauth "github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/auth/providers"
	"github.com/fhpereira/acesso/internal/handlers"
	"github.com/fhpereira/acesso/internal/middleware"
	"github.com/fhpereira/acesso/internal/services"
	"github.com/fhpereira/acesso/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers the
// authentication routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, sessions *iauth.SessionService, rateStore middleware.RateStore, registry *providers.Registry, mailer mail.Mailer) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if registry == nil {
		registry = providers.NewRegistry()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(rateStore, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window))
	}

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	local, err := providers.NewLocalProvider(db, providers.LocalConfig{})
	if err != nil {
		return nil, err
	}

	registrations, err := services.NewRegistrationService(db)
	if err != nil {
		return nil, err
	}

	magicOpts := []services.MagicLinkOption{}
	if cfg.MagicLink.BaseURL != "" {
		magicOpts = append(magicOpts, services.WithMagicLinkBaseURL(cfg.MagicLink.BaseURL))
	}
	if cfg.MagicLink.Expiry > 0 {
		magicOpts = append(magicOpts, services.WithMagicLinkExpiry(cfg.MagicLink.Expiry))
	}
	magic, err := services.NewMagicLinkService(db, mailer, magicOpts...)
	if err != nil {
		return nil, err
	}

	linker, err := iauth.NewAccountLinker(db, sessions, iauth.LinkerConfig{})
	if err != nil {
		return nil, err
	}

	stateCodec, err := cfg.Auth.StateCodec()
	if err != nil {
		return nil, fmt.Errorf("build state codec: %w", err)
	}

	authHandler := handlers.NewAuthHandler(db, local, sessions)
	registerHandler := handlers.NewRegisterHandler(registrations)
	oauthHandler := handlers.NewOAuthHandler(registry, linker, stateCodec)
	magicHandler := handlers.NewMagicLinkHandler(magic, sessions)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", registerHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/providers", oauthHandler.Providers)
		auth.GET("/oauth/:provider/login", oauthHandler.Begin)
		auth.GET("/oauth/:provider/callback", oauthHandler.Callback)
		auth.POST("/magic-link", magicHandler.Request)
		auth.GET("/magic-link/callback", magicHandler.Callback)
	}

	// Protected routes
	requireAuth := middleware.Auth(jwt)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/session", authHandler.Session)
	api.POST("/auth/logout", authHandler.Logout)

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
