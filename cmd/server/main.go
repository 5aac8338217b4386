// Package main starts the attendance API: HTTP routes, the reader-bridge
// dispatcher and, when enabled, the Redis scan consumer.
//
// @title                       Attendance API
// @version                     1.0
// @description                 Token identity, check-in ledger and reader bridge for class attendance.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/99minutos/attendance-system/internal/api"
	"github.com/99minutos/attendance-system/internal/api/handler"
	"github.com/99minutos/attendance-system/internal/api/middleware"
	"github.com/99minutos/attendance-system/internal/core/service"
	mongostore "github.com/99minutos/attendance-system/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/attendance-system/internal/infrastructure/db/redis"
	"github.com/99minutos/attendance-system/internal/infrastructure/queue"
	"github.com/99minutos/attendance-system/internal/pkg/config"
	"github.com/99minutos/attendance-system/pkg/logger"
)

const (
	serviceName     = "attendance-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg := config.MustLoad()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: serviceName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid timezone")
	}

	mongoClient, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		AppName:     serviceName,
		Timeout:     cfg.Mongo.Timeout,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		if err := mongostore.Disconnect(mongoClient); err != nil {
			log.Warn().Err(err).Msg("mongodb disconnect")
		}
	}()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	// --- Storage ---
	authRepo := mongostore.NewAuthRepository(db)
	tokenRepo := mongostore.NewTokenRepository(db)
	checkInRepo := mongostore.NewCheckInRepository(db)
	for name, ensure := range map[string]func(context.Context) error{
		"users":    authRepo.EnsureIndexes,
		"tokens":   tokenRepo.EnsureIndexes,
		"checkins": checkInRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			log.Fatal().Err(err).Str("collection", name).Msg("failed to ensure indexes")
		}
	}

	revoker := redisstore.NewSessionRevoker(rdb)
	feed := redisstore.NewCheckInFeed(rdb, log)

	// --- Core ---
	authService := service.NewAuthService(authRepo, revoker, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	identity := service.NewIdentityService(tokenRepo, log)
	issuer := service.NewIssuerService(identity, cfg.CheckIn.IssuanceMaxAttempts, log)
	resolver := service.NewResolverService(identity)
	ledger := service.NewCheckInService(identity, checkInRepo, redisstore.NewDedupCache(rdb), feed, service.CheckInOptions{
		DedupWindow:  cfg.CheckIn.DedupWindow,
		TouchTimeout: cfg.CheckIn.TouchTimeout,
		Location:     loc,
	}, log)
	scans := service.NewScanService(identity, ledger, cfg.Scan.DefaultSubject, log)

	// Workers keep their own context so they outlive the HTTP drain. Once it
	// is cancelled they finish every scan still buffered before returning.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	dispatcher := queue.NewDispatcher(cfg.Scan.Workers, scans, log)
	dispatcher.Start(workerCtx)

	limiter := middleware.NewRateLimiter(cfg.CheckIn.RatePerMinute, log)
	defer limiter.Stop()

	e := api.NewRouter(api.Deps{
		JWTSecret:      cfg.Auth.JWTSecret,
		Log:            log,
		Auth:           authService,
		Revoker:        revoker,
		Identity:       identity,
		Issuer:         issuer,
		Resolver:       resolver,
		Ledger:         ledger,
		Feed:           feed,
		Scans:          dispatcher,
		CheckInLimiter: limiter,
		Readiness:      handler.NewHealthDependenciesHandler(db, rdb),
		Subjects:       cfg.Catalog.Subjects,
		Rooms:          cfg.Catalog.Rooms,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Scan.SourceEnabled {
		source := redisstore.NewScanSource(rdb, cfg.Scan.QueueKey)
		g.Go(func() error {
			log.Info().Str("key", cfg.Scan.QueueKey).Msg("consuming reader scans from redis")
			return dispatcher.Consume(gctx, source)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}

	stopWorkers()
	dispatcher.Wait()
	ledger.Wait()
	log.Info().Msg("shutdown complete")
}
