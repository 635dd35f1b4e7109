package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"fileshare/internal/adminui"
	"fileshare/internal/auth"
	"fileshare/internal/config"
	"fileshare/internal/domain"
	"fileshare/internal/service"
	"fileshare/internal/store/jsonstore"
	"fileshare/internal/userui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	store, err := jsonstore.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Error("store open failed", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	sessions := auth.NewSessionManager(cfg.SessionTTL)
	cookieCodec := auth.NewCookieCodec([]byte(cfg.CookieSecret))

	storageSvc := &service.StorageService{
		Store:     store,
		UploadDir: cfg.UploadDir,
	}
	fileSvc := &service.FileService{
		Store:   store,
		Storage: storageSvc,
		Logger:  logger,
	}
	emailSvc := &service.EmailService{
		Store:   store,
		BaseURL: cfg.BaseURL(),
	}
	accountSvc := &service.AccountService{
		Store:      store,
		Files:      fileSvc,
		Sessions:   sessions,
		Email:      emailSvc,
		ProfileDir: cfg.ProfileDir,
		Logger:     logger,
	}
	recoverySvc := &service.RecoveryService{
		Store:  store,
		Email:  emailSvc,
		Logger: logger,
	}
	adminSvc := &service.AdminService{
		Store:    store,
		Files:    fileSvc,
		Storage:  storageSvc,
		Sessions: sessions,
		Logger:   logger,
	}

	if err := bootstrapAdminUser(logger, store, cfg.AdminBootstrapUsername, cfg.AdminBootstrapEmail, cfg.AdminBootstrapPassword); err != nil {
		logger.Error("bootstrap admin failed", "err", err)
		os.Exit(1)
	}

	userRouter := userui.New(userui.Opts{
		Logger:       logger,
		Store:        store,
		Accounts:     accountSvc,
		Files:        fileSvc,
		Storage:      storageSvc,
		Recovery:     recoverySvc,
		CookieCodec:  cookieCodec,
		CookieSecure: cfg.CookieSecure(),
		SessionTTL:   cfg.SessionTTL,
		ProfileDir:   cfg.ProfileDir,
	})
	adminRouter := adminui.New(adminui.Opts{
		Logger:       logger,
		Accounts:     accountSvc,
		Admin:        adminSvc,
		Email:        emailSvc,
		Storage:      storageSvc,
		CookieCodec:  cookieCodec,
		CookieSecure: cfg.CookieSecure(),
	})

	root := http.NewServeMux()
	root.Handle("/", userRouter)
	root.Handle("/admin", adminRouter)
	root.Handle("/admin/", adminRouter)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "data_dir", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

// bootstrapAdminUser creates the first admin account from the
// APP_ADMIN_BOOTSTRAP_* variables. It is a no-op when no password is
// set or when the username already exists.
func bootstrapAdminUser(logger *slog.Logger, store *jsonstore.Store, username, email, password string) error {
	if password == "" {
		return nil
	}
	if username == "" || email == "" {
		return errors.New("admin bootstrap: username and email are required")
	}

	key := domain.NormalizeUsername(username)
	if _, err := store.GetUser(key); err == nil {
		logger.Info("admin bootstrap: user already exists", "user", key)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("admin bootstrap: lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("admin bootstrap: hash password: %w", err)
	}

	u := domain.User{
		Username:       key,
		PasswordHash:   hash,
		Email:          email,
		Role:           domain.RoleAdmin,
		StorageLimitMB: store.Settings().UserStorageLimitMB,
		StoragePublic:  true,
		EmailVerified:  true,
		CreatedAt:      time.Now(),
	}
	if err := store.PutUser(u); err != nil {
		return fmt.Errorf("admin bootstrap: create user: %w", err)
	}

	logger.Info("admin bootstrap: created admin user", "user", key)
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
