package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/portfolio-contact/internal/application/contact"
	"github.com/portfolio-contact/internal/application/verification"
	"github.com/portfolio-contact/internal/config"
	"github.com/portfolio-contact/internal/infrastructure/dynamo"
	"github.com/portfolio-contact/internal/infrastructure/memory"
	"github.com/portfolio-contact/internal/infrastructure/notify"
	"github.com/portfolio-contact/internal/infrastructure/redis"
	"github.com/portfolio-contact/internal/infrastructure/sns"
	"github.com/portfolio-contact/internal/logger"
	"github.com/portfolio-contact/internal/monitoring"
	"github.com/portfolio-contact/internal/scheduler"
	transporthttp "github.com/portfolio-contact/internal/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// store is what every verification backend offers.
type store interface {
	verification.Store
	Ping(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	zl, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		File:        cfg.LogFile,
		MaxSizeMB:   50,
		MaxBackups:  5,
		MaxAgeDays:  14,
		Compress:    true,
	})
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()

	st, closeStore, err := openStore(ctx, cfg, zl)
	if err != nil {
		zl.Error("open verification store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
		return 1
	}
	defer closeStore()

	// A broken mail setup must not stop the API from starting; requests get a 503 instead.
	mailer, err := notify.New(cfg, zl, &http.Client{Timeout: cfg.DispatchTimeout})
	if err != nil {
		zl.Warn("email dispatcher not available", zap.String("provider", cfg.MailProvider), zap.Error(err))
		mailer = notify.Unavailable{Err: err}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	verifySvc := verification.NewService(verification.ServiceDeps{
		Store:           st,
		Sender:          mailer,
		Metrics:         metrics,
		Logger:          zl.Named("verification"),
		TTL:             cfg.OTPTTL,
		VerifiedTTL:     cfg.OTPVerifiedTTL,
		DispatchTimeout: cfg.DispatchTimeout,
		HashCost:        cfg.OTPHashCost,
	})

	contactDeps := contact.ServiceDeps{
		Verifier:        verifySvc,
		Sender:          mailer,
		Metrics:         metrics,
		Logger:          zl.Named("contact"),
		DispatchTimeout: cfg.DispatchTimeout,
	}
	alerter, err := sns.NewFromConfig(ctx, cfg)
	switch {
	case err != nil:
		zl.Warn("owner alerts disabled", zap.Error(err))
	case alerter != nil:
		contactDeps.Alerter = alerter
	}
	contactSvc := contact.NewService(contactDeps)

	sched := scheduler.New(zl)
	sched.AddSweep(ctx, cfg.OTPSweepInterval, verifySvc)
	sched.Start()

	srv := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.AppPort),
		Handler: transporthttp.NewRouter(&transporthttp.Deps{
			Verification:   verifySvc,
			Contact:        contactSvc,
			Metrics:        metrics,
			Gatherer:       reg,
			Health:         transporthttp.NewHealthChecks(st, 2*time.Second),
			Logger:         zl.Named("http"),
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DispatchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("store", cfg.StoreBackend),
			zap.String("mail", cfg.MailProvider),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		zl.Info("shutting down server")

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Stop(shutCtx); err != nil {
			zl.Warn("scheduler did not stop in time", zap.Error(err))
		}
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		zl.Error("server stopped with error", zap.Error(err))
		return 1
	}
	zl.Info("server stopped")
	return 0
}

// openStore builds the configured verification store. The returned func releases
// its connections.
func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return redis.NewStore(rdb, cfg.RedisKeyPrefix, cfg.OTPSweepInterval), func() { _ = rdb.Close() }, nil
	case config.StoreDynamo:
		client, err := dynamo.NewClient(ctx, dynamo.Options{
			Region:      cfg.AWSRegion,
			Endpoint:    cfg.AWSEndpointURL,
			AccessKey:   cfg.AWSAccessKeyID,
			SecretKey:   cfg.AWSSecretKey,
			MaxAttempts: 3,
		})
		if err != nil {
			return nil, nil, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables, zl.Named("dynamo"))
		return dynamo.NewVerificationRepo(client, cfg.DynamoTables.Verifications, cfg.OTPSweepInterval), func() {}, nil
	default:
		zl.Warn("using in-memory verification store; codes are lost on restart and not shared between instances")
		return memory.NewStore(), func() {}, nil
	}
}
