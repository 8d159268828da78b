package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	billingdirectory "github.com/Abdulquadri-hub/niceblog/domains/billing/be/directory"
	billinggateway "github.com/Abdulquadri-hub/niceblog/domains/billing/be/gateway"
	billinghandler "github.com/Abdulquadri-hub/niceblog/domains/billing/be/handler"
	billingrepo "github.com/Abdulquadri-hub/niceblog/domains/billing/be/repo"
	billingservice "github.com/Abdulquadri-hub/niceblog/domains/billing/be/service"
	tenantshandler "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/handler"
	tenantsprov "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/provisioning"
	tenantsrepo "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/repo"
	tenantsscheduler "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/scheduler"
	tenantsservice "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
	platformlogging "github.com/Abdulquadri-hub/niceblog/platform/go/logging"
	platformmiddleware "github.com/Abdulquadri-hub/niceblog/platform/go/middleware"
	"github.com/Abdulquadri-hub/niceblog/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	EnvKey          string        `env:"ENV_KEY,required"`
	TrialDays       int           `env:"TRIAL_DAYS" envDefault:"14"`
	AdminAPIToken   string        `env:"ADMIN_API_TOKEN"`

	// RunWorker embeds the provisioning worker in the API process. Disable it
	// when a dedicated worker deployment claims the jobs instead.
	RunWorker         bool          `env:"RUN_WORKER" envDefault:"true"`
	WorkerPoll        time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"4"`

	DefaultGateway     string `env:"DEFAULT_GATEWAY" envDefault:"paystack"`
	DefaultCurrency    string `env:"DEFAULT_CURRENCY" envDefault:"NGN"`
	BillingCallbackURL string `env:"BILLING_CALLBACK_URL"`

	PaystackSecretKey      string `env:"PAYSTACK_SECRET_KEY"`
	FlutterwaveSecretKey   string `env:"FLUTTERWAVE_SECRET_KEY"`
	FlutterwaveWebhookHash string `env:"FLUTTERWAVE_WEBHOOK_HASH"`
	StripeSecretKey        string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string `env:"STRIPE_WEBHOOK_SECRET"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
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
	queue := tenantsscheduler.NewPostgresQueue(pool)
	tenantService := tenantsservice.New(tenantRepo, queue, databases, logger, tenantsservice.Config{
		EnvKey:    cfg.EnvKey,
		TrialDays: cfg.TrialDays,
	})
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	registry := buildGatewayRegistry(cfg, logger)
	billingRepo := billingrepo.NewPostgresRepository(pool)
	billingService := billingservice.New(billingRepo, billingdirectory.New(tenantService), registry, logger, billingservice.Config{
		DefaultGateway:  cfg.DefaultGateway,
		DefaultCurrency: cfg.DefaultCurrency,
		CallbackURL:     cfg.BillingCallbackURL,
	})
	billingHTTPHandler := billinghandler.New(billingService, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformmiddleware.RequireBearerToken(cfg.AdminAPIToken))
		tenantHTTPHandler.Routes(r)
		billingHTTPHandler.Routes(r)
	})
	// Gateways sign their own calls; the admin token never covers webhooks.
	billingHTTPHandler.WebhookRoutes(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	workerCtx, stopWorker := context.WithCancel(ctx)
	var workerWG sync.WaitGroup
	if cfg.RunWorker {
		provisioner := tenantsprov.NewProvisioner(tenantRepo, databases, logger)
		worker := tenantsscheduler.NewWorker(queue, provisioner, logger, tenantsscheduler.WorkerConfig{
			PollInterval: cfg.WorkerPoll,
			Concurrency:  cfg.WorkerConcurrency,
		})
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			worker.Start(workerCtx)
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	stopWorker()
	workerWG.Wait()
}

// buildGatewayRegistry registers only the gateways whose credentials are
// configured. An empty registry is valid; payment attempts then fail with
// an unsupported-gateway error.
func buildGatewayRegistry(cfg config, logger *zap.Logger) *billinggateway.Registry {
	var clients []billinggateway.Client
	if cfg.PaystackSecretKey != "" {
		clients = append(clients, billinggateway.NewPaystack(billinggateway.PaystackConfig{
			SecretKey: cfg.PaystackSecretKey,
		}, logger))
	}
	if cfg.FlutterwaveSecretKey != "" {
		clients = append(clients, billinggateway.NewFlutterwave(billinggateway.FlutterwaveConfig{
			SecretKey:   cfg.FlutterwaveSecretKey,
			WebhookHash: cfg.FlutterwaveWebhookHash,
		}, logger))
	}
	if cfg.StripeSecretKey != "" {
		clients = append(clients, billinggateway.NewStripe(billinggateway.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}, logger))
	}
	if len(clients) == 0 {
		logger.Warn("no payment gateway configured; billing endpoints will reject payment attempts")
	}

	names := make([]string, 0, len(clients))
	for _, c := range clients {
		names = append(names, c.Name())
	}
	logger.Info("payment gateways registered", zap.Strings("gateways", names))

	return billinggateway.NewRegistry(clients...)
}
