package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/background"
	"github.com/velist/velist/internal/config"
	"github.com/velist/velist/internal/database"
	"github.com/velist/velist/internal/handlers"
	"github.com/velist/velist/internal/middleware"
	"github.com/velist/velist/internal/repositories"
	"github.com/velist/velist/internal/routes"
	"github.com/velist/velist/internal/services"
	pkgauth "github.com/velist/velist/pkg/auth"
	pkghttp "github.com/velist/velist/pkg/http"
	pkglogger "github.com/velist/velist/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if cfg.Auth.EncryptionKeyFallback {
		logger.Warn("TWO_FACTOR_ENCRYPTION_KEY is not set; two-factor secrets are encrypted with JWT_SECRET")
	}

	// Initialize database
	db, err := database.NewConnection(context.Background(), &cfg.Database, "velist-api", logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	database.SetMigrationLogger(logger)
	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = db.Migrate(migrateCtx)
	cancel()
	if err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	backupCodeRepo := repositories.NewBackupCodeRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)

	sessionStore, cleanupManager, closeStore, err := newSessionStore(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	// Initialize security primitives
	secretCipher, err := auth.NewSecretCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize secret cipher", slog.Any("error", err))
		os.Exit(1)
	}
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	auditLogger := pkglogger.NewAuditLogger(logger)

	ips, invalid := pkghttp.NewIPResolver(cfg.Server.TrustedProxies)
	for _, cidr := range invalid {
		logger.Warn("ignoring invalid trusted proxy", slog.String("cidr", cidr))
	}

	notifier := newNotifier(cfg, logger)

	// Initialize services
	sessionService := services.NewSessionService(tokenManager, sessionStore, userRepo, services.SessionConfig{
		Lifetime:         cfg.Auth.SessionLifetime,
		RememberLifetime: cfg.Auth.RememberLifetime,
		PendingTTL:       cfg.Auth.PendingTwoFactorTTL,
	}, logger)

	credentialService := services.NewCredentialService(userRepo, hasher, auth.NewTimingDelay(auth.DefaultTimingConfig), logger)

	twoFactorService := services.NewTwoFactorService(services.TwoFactorDeps{
		Users:    userRepo,
		Codes:    backupCodeRepo,
		Store:    twoFactorRepo,
		Cipher:   secretCipher,
		TOTP:     auth.NewTOTPManager(cfg.Auth.TOTPIssuer),
		Hasher:   hasher,
		Notifier: notifier,
		Sessions: sessionService,
		Logger:   logger,
	})

	var oauthProvider services.OAuthProvider
	if cfg.OAuth.Enabled() {
		oauthProvider = services.NewGoogleOAuthProvider(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.GoogleRedirectURL)
	}

	// Initialize handlers
	pages := pkghttp.NewPageRenderer(cfg.Server.AppVersion)
	cookies := auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.IsProduction(),
		SameSite: "lax",
	}

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerDeps{
		Credentials: credentialService,
		Sessions:    sessionService,
		TwoFactor:   twoFactorService,
		OAuth:       oauthProvider,
		Pages:       pages,
		IPs:         ips,
		Audit:       auditLogger,
		Cookies:     cookies,
		OAuthTTL:    cfg.Auth.OAuthStateTTL,
		Logger:      logger,
	})

	router := routes.NewRouter(routes.Deps{
		Auth:      authHandler,
		Settings:  handlers.NewTwoFactorSettingsHandler(twoFactorService, pages, ips, auditLogger, logger),
		Dashboard: handlers.NewDashboardHandler(userRepo, pages, logger),
		Health:    handlers.NewHealthHandler(db, logger),
		Sessions:  sessionService,
		IPs:       ips,
		RateLimit: middleware.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRateLimit},
		Env:       cfg.Server.Env,
		AppURL:    cfg.Server.AppURL,
		Logger:    logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	if cleanupManager != nil {
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.Bool("oauth", cfg.OAuth.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newSessionStore opens the configured registry. Only the Postgres registry
// needs the periodic cleanup; Redis expires keys itself.
func newSessionStore(cfg *config.Config, db *database.DB, logger *slog.Logger) (services.SessionStore, *background.CleanupManager, func(), error) {
	registry, closeFn, err := repositories.OpenSessionStore(context.Background(), cfg, db)
	if err != nil {
		return nil, nil, closeFn, err
	}

	switch store := registry.(type) {
	case nil:
		logger.Warn("session registry disabled; logout cannot revoke issued tokens")
		return nil, nil, closeFn, nil
	case *repositories.SessionRepository:
		logger.Info("using postgres session registry")
		return store, background.NewCleanupManager(store, logger, cfg.Auth.SessionCleanupInterval), closeFn, nil
	default:
		logger.Info("using redis session registry")
		return store, nil, closeFn, nil
	}
}

// newNotifier sends security emails through SES when EMAIL_FROM is set and
// logs them otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) services.Notifier {
	if cfg.Email.From == "" {
		return services.NewLogNotifier(logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notifier, err := services.NewSESNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.From, cfg.Server.AppURL, logger)
	if err != nil {
		logger.Error("failed to initialize SES notifier, falling back to log output", slog.Any("error", err))
		return services.NewLogNotifier(logger)
	}
	return notifier
}
