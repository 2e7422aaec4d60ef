package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/config"
	"github.com/velist/velist/internal/database"
	"github.com/velist/velist/internal/repositories"
	"github.com/velist/velist/internal/services"
	pkgauth "github.com/velist/velist/pkg/auth"
)

// app holds the services a command needs. Built per invocation from the
// same environment the API server reads.
type app struct {
	cfg         *config.Config
	db          *database.DB
	logger      *slog.Logger
	users       *repositories.UserRepository
	credentials *services.CredentialService
	twoFactor   *services.TwoFactorService
	closers     []func()
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := database.NewConnection(ctx, &cfg.Database, "velistctl", logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a := &app{cfg: cfg, db: db, logger: logger, closers: []func(){db.Close}}

	registry, closeStore, err := repositories.OpenSessionStore(ctx, cfg, db)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	cipher, err := auth.NewSecretCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		a.close()
		return nil, err
	}

	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	a.users = repositories.NewUserRepository(db)
	a.credentials = services.NewCredentialService(a.users, hasher, nil, logger)

	sessions := services.NewSessionService(auth.NewTokenManager(cfg.Auth.JWTSecret), registry, a.users, services.SessionConfig{
		Lifetime:         cfg.Auth.SessionLifetime,
		RememberLifetime: cfg.Auth.RememberLifetime,
		PendingTTL:       cfg.Auth.PendingTwoFactorTTL,
	}, logger)

	a.twoFactor = services.NewTwoFactorService(services.TwoFactorDeps{
		Users:    a.users,
		Codes:    repositories.NewBackupCodeRepository(db),
		Store:    repositories.NewTwoFactorRepository(db),
		Cipher:   cipher,
		TOTP:     auth.NewTOTPManager(cfg.Auth.TOTPIssuer),
		Hasher:   hasher,
		Notifier: services.NewLogNotifier(logger),
		Sessions: sessions,
		Logger:   logger,
	})

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
