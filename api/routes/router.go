package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dcastano/repairhub-backend/api/controllers"
	webhookcontrollers "github.com/dcastano/repairhub-backend/api/controllers/webhooks"
	"github.com/dcastano/repairhub-backend/api/middleware"
	"github.com/dcastano/repairhub-backend/internal/bankaccounts"
	"github.com/dcastano/repairhub-backend/internal/centers"
	"github.com/dcastano/repairhub-backend/internal/deliveries"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/internal/notifications"
	"github.com/dcastano/repairhub-backend/internal/payments"
	"github.com/dcastano/repairhub-backend/internal/settlement"
	"github.com/dcastano/repairhub-backend/pkg/auth"
	"github.com/dcastano/repairhub-backend/pkg/config"
	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	jobsService jobs.Service,
	deliveriesService deliveries.Service,
	paymentsService payments.Service,
	settlementService settlement.Service,
	bankAccountsService bankaccounts.Service,
	centersService centers.Service,
	notificationsService notifications.Service,
	courierWebhookService webhookcontrollers.CourierWebhookService,
	paymentWebhookService webhookcontrollers.PaymentWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbClient, redisClient, logg))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/couriers/{provider}", webhookcontrollers.CourierWebhook(courierWebhookService, cfg.Couriers, logg))
		r.Post("/payments", webhookcontrollers.PaymentWebhook(paymentWebhookService, cfg.Payment, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", controllers.ListJobs(jobsService, logg))
			r.Get("/{jobID}", controllers.GetJob(jobsService, logg))
			r.Get("/{jobID}/deliveries", controllers.ListJobDeliveries(deliveriesService, logg))
			r.Get("/{jobID}/payments", controllers.ListJobPayments(paymentsService, logg))

			// both sides can book a leg: the customer schedules pickup,
			// the center schedules the return
			r.With(middleware.RequireAnyRole(logg, auth.RoleCustomer, auth.RoleStaff)).
				Post("/{jobID}/deliveries", controllers.ScheduleDelivery(deliveriesService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleCustomer, logg))
				r.Post("/", controllers.CreateJob(jobsService, logg))
				r.Post("/{jobID}/accept-quote", controllers.AcceptQuote(jobsService, logg))
				r.Post("/{jobID}/cancel", controllers.CancelJob(jobsService, logg))
				r.Post("/{jobID}/adjustment/resolve", controllers.ResolveAdjustment(jobsService, logg))
				r.Post("/{jobID}/confirm-return", controllers.ConfirmDeviceReturned(jobsService, logg))
				r.Post("/{jobID}/confirm-satisfaction", controllers.ConfirmSatisfaction(jobsService, logg))
				r.Post("/{jobID}/payments/checkout", controllers.RecordCheckout(paymentsService, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleStaff, logg))
				r.Post("/{jobID}/adjustment", controllers.ProposeAdjustment(jobsService, logg))
				r.Post("/{jobID}/repair-completed", controllers.MarkRepairCompleted(jobsService, logg))
			})
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/{deliveryID}", controllers.GetDelivery(deliveriesService, logg))
			r.Get("/{deliveryID}/track", controllers.TrackDelivery(deliveriesService, logg))
			r.Post("/{deliveryID}/cancel", controllers.CancelDelivery(deliveriesService, logg))
		})

		r.Route("/centers", func(r chi.Router) {
			r.Get("/{centerID}", controllers.GetCenter(centersService, logg))
			r.With(middleware.RequireRole(auth.RoleAdmin, logg)).
				Post("/", controllers.RegisterCenter(centersService, logg))
			r.With(middleware.RequireRole(auth.RoleStaff, logg)).
				Patch("/me", controllers.UpdateCenter(centersService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleStaff, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})

			r.Route("/bank-account", func(r chi.Router) {
				r.Get("/", controllers.GetBankAccount(bankAccountsService, logg))
				r.Put("/", controllers.SubmitBankAccount(bankAccountsService, logg))
			})

			r.Get("/payouts", controllers.ListPayouts(settlementService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(auth.RoleAdmin, logg))
		r.Post("/payouts/process", controllers.ProcessPayoutBatch(settlementService, logg))
	})

	return r
}
