package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dcastano/repairhub-backend/api/routes"
	"github.com/dcastano/repairhub-backend/internal/bankaccounts"
	"github.com/dcastano/repairhub-backend/internal/centers"
	"github.com/dcastano/repairhub-backend/internal/couriers"
	"github.com/dcastano/repairhub-backend/internal/couriers/shipra"
	"github.com/dcastano/repairhub-backend/internal/couriers/wheely"
	"github.com/dcastano/repairhub-backend/internal/deliveries"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/internal/notifications"
	"github.com/dcastano/repairhub-backend/internal/payments"
	"github.com/dcastano/repairhub-backend/internal/settlement"
	"github.com/dcastano/repairhub-backend/internal/webhooks"
	courierwebhook "github.com/dcastano/repairhub-backend/internal/webhooks/courier"
	paymentwebhook "github.com/dcastano/repairhub-backend/internal/webhooks/payment"
	"github.com/dcastano/repairhub-backend/pkg/config"
	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
	"github.com/dcastano/repairhub-backend/pkg/migrate"
	"github.com/dcastano/repairhub-backend/pkg/redis"
)

// webhookDedupeTTL bounds how long an event id blocks replays. Providers
// retry for at most a couple of days.
const webhookDedupeTTL = 48 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(promRegistry)
	payoutMetrics := metrics.NewPayoutMetrics(promRegistry)

	repairRate, err := cfg.Fees.RepairCommission()
	if err != nil {
		logg.Error(context.Background(), "invalid repair commission rate", err)
		os.Exit(1)
	}
	deliveryRate, err := cfg.Fees.DeliveryCommission()
	if err != nil {
		logg.Error(context.Background(), "invalid delivery commission rate", err)
		os.Exit(1)
	}

	wheelyClient, err := wheely.NewClient(cfg.Couriers.Wheely)
	if err != nil {
		logg.Error(context.Background(), "failed to create wheely client", err)
		os.Exit(1)
	}
	shipraClient, err := shipra.NewClient(cfg.Couriers.Shipra)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipra client", err)
		os.Exit(1)
	}
	courierRegistry := couriers.NewRegistry(wheelyClient, shipraClient)

	jobsRepo := jobs.NewRepository(dbClient.DB())
	deliveriesRepo := deliveries.NewRepository(dbClient.DB())
	settlementRepo := settlement.NewRepository(dbClient.DB())
	bankAccountsRepo := bankaccounts.NewRepository(dbClient.DB())
	centersRepo := centers.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())

	dispatcher, err := notifications.NewDispatcher(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:             settlementRepo,
		TxRunner:         dbClient,
		Dispatcher:       dispatcher,
		Metrics:          payoutMetrics,
		Logger:           logg,
		RepairCommission: repairRate,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	jobsService, err := jobs.NewService(jobs.ServiceParams{
		Repo:             jobsRepo,
		TxRunner:         dbClient,
		Payouts:          settlementService,
		Dispatcher:       dispatcher,
		RepairCommission: repairRate,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create jobs service", err)
		os.Exit(1)
	}

	deliveriesService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:               deliveriesRepo,
		JobsRepo:           jobsRepo,
		Centers:            centersRepo,
		Providers:          courierRegistry,
		TxRunner:           dbClient,
		Logger:             logg,
		DeliveryCommission: deliveryRate,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create deliveries service", err)
		os.Exit(1)
	}

	bankAccountsService, err := bankaccounts.NewService(bankaccounts.ServiceParams{
		Repo:     bankAccountsRepo,
		Centers:  centersRepo,
		TxRunner: dbClient,
		LockDays: cfg.Fees.BankAccountLockDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bank accounts service", err)
		os.Exit(1)
	}

	centersService, err := centers.NewService(centersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create centers service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(paymentsRepo, jobsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	courierGuard, err := webhooks.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "courier")
	if err != nil {
		logg.Error(context.Background(), "failed to create courier idempotency guard", err)
		os.Exit(1)
	}
	paymentGuard, err := webhooks.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "payment")
	if err != nil {
		logg.Error(context.Background(), "failed to create payment idempotency guard", err)
		os.Exit(1)
	}

	courierWebhookService, err := courierwebhook.NewService(courierwebhook.ServiceParams{
		DeliveriesRepo: deliveriesRepo,
		JobsRepo:       jobsRepo,
		Providers:      courierRegistry,
		Guard:          courierGuard,
		TxRunner:       dbClient,
		Metrics:        webhookMetrics,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create courier webhook service", err)
		os.Exit(1)
	}

	paymentWebhookService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Repo:     paymentsRepo,
		Guard:    paymentGuard,
		TxRunner: dbClient,
		Metrics:  webhookMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promRegistry,
			jobsService,
			deliveriesService,
			paymentsService,
			settlementService,
			bankAccountsService,
			centersService,
			notificationsService,
			courierWebhookService,
			paymentWebhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
