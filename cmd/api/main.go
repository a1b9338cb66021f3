// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"unilib/internal/attendance"
	"unilib/internal/auth"
	"unilib/internal/catalog"
	"unilib/internal/circulation"
	"unilib/internal/config"
	"unilib/internal/dashboard"
	"unilib/internal/database"
	"unilib/internal/eventstore"
	"unilib/internal/logging"
	"unilib/internal/membership"
	"unilib/internal/server"
	"unilib/internal/storage"
	"unilib/internal/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("UNILIB_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logging.New(cfg.Log, cfg.Server.Env)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("unilib stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}
	}()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	covers, err := storage.NewCoverStore(cfg.Server.UploadDir)
	if err != nil {
		return err
	}

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("JWT_SECRET is not set, using a random secret; sessions will not survive a restart")
	}
	tokens := auth.NewTokenManager(secret, cfg.JWT.Expiration)
	authn := auth.NewMiddleware(tokens, auth.CookieOptions{
		Secure: cfg.Production(),
		Domain: cfg.Server.CookieDomain,
	}, log)

	loc := cfg.Location()
	es := eventstore.NewEventStore(db)
	limiter := membership.NewLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	attendanceSvc := attendance.NewService(db, es, loc, log)
	handler := server.NewRouter(server.Handlers{
		Membership:  membership.NewHandler(membership.NewService(db, es, tokens, limiter, log), authn, log),
		Catalog:     catalog.NewHandler(catalog.NewService(db, covers, log), cfg.Server.MaxUploadMB<<20, log),
		Circulation: circulation.NewHandler(circulation.NewService(db, es, loc, log), cfg.Library.PageSize, log),
		Attendance:  attendance.NewHandler(attendanceSvc, log),
		Dashboard:   dashboard.NewHandler(dashboard.NewService(db, attendanceSvc), log),
		Covers:      covers.Handler(),
		DB:          db,
	}, authn, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":      srv.Addr,
			"env":       cfg.Server.Env,
			"time_zone": loc.String(),
		}).Info("Starting unilib API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
