// The worker binary claims queued provisioning jobs and runs tenant setup.
// It shares the landlord database with the API server; run as many replicas
// as needed, the queue hands each job to exactly one of them.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	tenantsprov "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/provisioning"
	tenantsrepo "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/repo"
	tenantsscheduler "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/scheduler"
	platformlogging "github.com/Abdulquadri-hub/niceblog/platform/go/logging"
	"github.com/Abdulquadri-hub/niceblog/platform/go/persistence"
)

type config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	Concurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	JobTimeout   time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"5m"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "provisioning-worker",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.EnsureLandlordSchema(ctx, pool); err != nil {
		logger.Fatal("bootstrap landlord schema", zap.Error(err))
	}

	databases, err := tenantsprov.NewDatabases(pool, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("init tenant databases", zap.Error(err))
	}

	tenantRepo := tenantsrepo.NewPostgresRepository(pool)
	provisioner := tenantsprov.NewProvisioner(tenantRepo, databases, logger)
	queue := tenantsscheduler.NewPostgresQueue(pool)
	worker := tenantsscheduler.NewWorker(queue, provisioner, logger, tenantsscheduler.WorkerConfig{
		PollInterval: cfg.PollInterval,
		Concurrency:  cfg.Concurrency,
		JobTimeout:   cfg.JobTimeout,
	})

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.Info("provisioning worker started",
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("concurrency", cfg.Concurrency))

	worker.Start(runCtx)
	logger.Info("provisioning worker stopped")
}
