package courierwebhook

import (
	"context"
	"fmt"
	"time"

	"github.com/dcastano/repairhub-backend/internal/couriers"
	"github.com/dcastano/repairhub-backend/internal/deliveries"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/internal/webhooks"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/metrics"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Event is a normalized courier status callback. Providers deliver these
// at least once and in no guaranteed order.
type Event struct {
	Provider        enums.CourierProvider
	EventID         string
	ProviderOrderID string
	RawStatus       string
	OccurredAt      *time.Time
	Location        *string
	Note            *string
	// CashCollected is set when the driver reports collecting the
	// customer's cash payment on a return leg.
	CashCollected bool
}

// Service reconciles courier webhook events against delivery legs.
type Service struct {
	deliveriesRepo deliveries.Repository
	jobsRepo       jobs.Repository
	providers      *couriers.Registry
	guard          *webhooks.IdempotencyGuard
	tx             txRunner
	metrics        *metrics.WebhookMetrics
	logg           *logger.Logger
}

// ServiceParams wires the courier reconciler dependencies.
type ServiceParams struct {
	DeliveriesRepo deliveries.Repository
	JobsRepo       jobs.Repository
	Providers      *couriers.Registry
	Guard          *webhooks.IdempotencyGuard
	TxRunner       txRunner
	Metrics        *metrics.WebhookMetrics
	Logger         *logger.Logger
}

// NewService builds the courier webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.DeliveriesRepo == nil {
		return nil, fmt.Errorf("deliveries repository required")
	}
	if params.JobsRepo == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("courier registry required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		deliveriesRepo: params.DeliveriesRepo,
		jobsRepo:       params.JobsRepo,
		providers:      params.Providers,
		guard:          params.Guard,
		tx:             params.TxRunner,
		metrics:        params.Metrics,
		logg:           params.Logger,
	}, nil
}

// Process applies one event. Replays and stale events reconcile like any
// other: the state writes are conditional so reapplying them is harmless,
// and every accepted event appends a history row even when the projected
// status does not move.
func (s *Service) Process(ctx context.Context, event Event) error {
	if event.ProviderOrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider order id required")
	}
	if event.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider":          event.Provider.String(),
		"event_id":          event.EventID,
		"provider_order_id": event.ProviderOrderID,
		"raw_status":        event.RawStatus,
	})

	// replays are counted but never short-circuited: the history trail
	// records every receipt, and the conditional writes in reconcile keep
	// reapplication safe
	dedupeKey := event.Provider.String() + ":" + event.EventID
	seen, err := s.guard.CheckAndMark(ctx, dedupeKey)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check")
	}
	if seen {
		s.metrics.IncDuplicate(event.Provider.String())
		s.logg.Info(logCtx, "courier event replayed")
	}

	provider, err := s.providers.Get(event.Provider)
	if err != nil {
		_ = s.guard.Delete(ctx, dedupeKey)
		s.metrics.IncRejected(event.Provider.String())
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve courier provider")
	}

	mapped, known := provider.MapStatus(event.RawStatus)
	if !known {
		s.logg.Warn(logCtx, "unknown courier status, keeping current projection")
	}

	if err := s.reconcile(ctx, logCtx, provider, event, mapped, known); err != nil {
		_ = s.guard.Delete(ctx, dedupeKey)
		s.metrics.IncRejected(event.Provider.String())
		return err
	}
	s.metrics.IncAccepted(event.Provider.String())
	return nil
}

func (s *Service) reconcile(
	ctx context.Context,
	logCtx context.Context,
	provider couriers.Provider,
	event Event,
	mapped enums.DeliveryStatus,
	known bool,
) error {
	occurredAt := time.Now().UTC()
	if event.OccurredAt != nil {
		occurredAt = event.OccurredAt.UTC()
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.deliveriesRepo.WithTx(tx)
		delivery, err := repo.FindByProviderOrderIDForUpdate(ctx, event.Provider, event.ProviderOrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found for provider order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
		}

		historyStatus := delivery.Status
		advance := known && mapped.AdvancesFrom(delivery.Status)
		if advance {
			historyStatus = mapped
			if err := repo.Update(ctx, delivery.ID, map[string]any{
				"status": mapped,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance delivery status")
			}
		} else if known && !delivery.Status.IsTerminal() && mapped != delivery.Status {
			s.logg.Info(logCtx, "stale courier event, projection unchanged")
		}

		// milestone timestamps are write-once: replays and late
		// duplicates never move them
		if known && impliesPickedUp(mapped) {
			if err := repo.SetPickupTimeIfUnset(ctx, delivery.ID, occurredAt); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pickup time")
			}
		}
		if known && mapped == enums.DeliveryStatusDelivered {
			if err := repo.SetDeliveryTimeIfUnset(ctx, delivery.ID, occurredAt); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record delivery time")
			}
		}

		if err := repo.AppendHistory(ctx, &models.DeliveryStatusHistory{
			DeliveryID: delivery.ID,
			Status:     historyStatus,
			RawStatus:  event.RawStatus,
			Location:   event.Location,
			Note:       event.Note,
			RecordedAt: occurredAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}

		if advance && mapped == enums.DeliveryStatusDelivered {
			if err := s.applyDeliveredSideEffects(ctx, logCtx, tx, provider, delivery, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyDeliveredSideEffects advances the owning job when a leg completes:
// a delivered pickup leg moves the job to pickup_scheduled, a delivered
// return leg to ready_for_return. These are the only job transitions a
// webhook may trigger; everything else belongs to the explicit customer
// and center operations.
func (s *Service) applyDeliveredSideEffects(
	ctx context.Context,
	logCtx context.Context,
	tx *gorm.DB,
	provider couriers.Provider,
	delivery *models.DeliveryRequest,
	event Event,
) error {
	jobsRepo := s.jobsRepo.WithTx(tx)
	job, err := jobsRepo.FindByIDForUpdate(ctx, delivery.JobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job for delivery")
	}

	var target enums.JobStatus
	switch delivery.Type {
	case enums.DeliveryTypePickup:
		target = enums.JobStatusPickupScheduled
	case enums.DeliveryTypeReturn:
		target = enums.JobStatusReadyForReturn
	default:
		return nil
	}

	if !jobs.CanTransition(job.Status, target) {
		s.logg.Warn(logCtx, "delivered leg found job in status "+job.Status.String()+", skipping job advance")
	} else if err := jobsRepo.Update(ctx, job.ID, map[string]any{
		"status": target,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance job status")
	}

	if delivery.Type == enums.DeliveryTypeReturn && event.CashCollected {
		cashStatus := enums.CashPaymentStatusAwaitingConfirmation
		if provider.ConfirmsCashOnDelivery() {
			cashStatus = enums.CashPaymentStatusConfirmed
		}
		deliveriesRepo := s.deliveriesRepo.WithTx(tx)
		if err := deliveriesRepo.Update(ctx, delivery.ID, map[string]any{
			"cash_payment_status": cashStatus,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cash payment status")
		}
	}
	return nil
}

// impliesPickedUp reports whether a status can only occur after the
// driver collected the parcel.
func impliesPickedUp(status enums.DeliveryStatus) bool {
	switch status {
	case enums.DeliveryStatusPickedUp, enums.DeliveryStatusInTransit, enums.DeliveryStatusDelivered:
		return true
	}
	return false
}
