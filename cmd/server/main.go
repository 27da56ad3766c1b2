package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/config"
	"github.com/lucasrenata/order-up-point-sub000/internal/httpapi"
	"github.com/lucasrenata/order-up-point-sub000/internal/lock"
	"github.com/lucasrenata/order-up-point-sub000/internal/register"
	"github.com/lucasrenata/order-up-point-sub000/internal/report"
	"github.com/lucasrenata/order-up-point-sub000/internal/retention"
	"github.com/lucasrenata/order-up-point-sub000/internal/service"
	"github.com/lucasrenata/order-up-point-sub000/internal/stock"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
	"github.com/lucasrenata/order-up-point-sub000/internal/store/memory"
	pgstore "github.com/lucasrenata/order-up-point-sub000/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg, os.Args[2:], os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("token")
		}
		return
	}

	serve(cfg)
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func serve(cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("apply schema")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}
	repo = store.WithTimeout(repo, cfg.StoreTimeout())

	var guard lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		redisLock := lock.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LockTTL())
		if err := redisLock.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process guard")
		} else {
			guard = redisLock
			closers = append(closers, redisLock.Close)
			log.Info().Msg("guard: redis")
		}
	} else {
		log.Info().Msg("guard: in-process")
	}

	clock := calendar.System()
	api := httpapi.New(httpapi.Services{
		Orders:    service.New(repo, stock.NewLedger(repo, guard), guard, clock),
		Registers: register.NewLedger(repo, clock, cfg.NoteThreshold()),
		Reports:   report.New(repo, clock),
		Retention: retention.NewSweeper(repo, clock, guard, cfg.RetentionDays),
	}, httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL()), cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("order-up backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// issueToken prints a signed bearer token for an operator:
//
//	server token -user maria -role cashier
func issueToken(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	username := fs.String("user", "", "operator username")
	role := fs.String("role", httpapi.RoleCashier, "cashier or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	issued, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL()).Issue(*username, *role)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(issued)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() && (cfg.AllowedOrigin == "" || cfg.AllowedOrigin == "*") {
		return fmt.Errorf("ALLOWED_ORIGIN must name the POS front-end in production")
	}
	return nil
}
