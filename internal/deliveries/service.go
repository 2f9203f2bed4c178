package deliveries

import (
	"context"
	"fmt"
	"time"

	"github.com/dcastano/repairhub-backend/internal/couriers"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type centerSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error)
}

// Service orchestrates courier legs for repair jobs.
type Service interface {
	Schedule(ctx context.Context, input ScheduleInput) (*models.DeliveryRequest, error)
	Cancel(ctx context.Context, input CancelInput) error
	Get(ctx context.Context, input GetInput) (*models.DeliveryRequest, error)
	ListByJob(ctx context.Context, input ListByJobInput) ([]models.DeliveryRequest, error)
	Track(ctx context.Context, input GetInput) ([]models.DeliveryStatusHistory, error)
}

type service struct {
	repo       Repository
	jobsRepo   jobs.Repository
	centers    centerSource
	providers  *couriers.Registry
	tx         txRunner
	logg       *logger.Logger
	commission decimal.Decimal
}

// ServiceParams wires the delivery orchestrator dependencies.
type ServiceParams struct {
	Repo               Repository
	JobsRepo           jobs.Repository
	Centers            centerSource
	Providers          *couriers.Registry
	TxRunner           txRunner
	Logger             *logger.Logger
	DeliveryCommission decimal.Decimal
}

// NewService builds the delivery orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("deliveries repository required")
	}
	if params.JobsRepo == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if params.Centers == nil {
		return nil, fmt.Errorf("centers source required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("courier registry required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       params.Repo,
		jobsRepo:   params.JobsRepo,
		centers:    params.Centers,
		providers:  params.Providers,
		tx:         params.TxRunner,
		logg:       params.Logger,
		commission: params.DeliveryCommission,
	}, nil
}

// ScheduleInput books one courier leg. The customer's address travels with
// the request; the center's address comes from its profile.
type ScheduleInput struct {
	JobID           uuid.UUID
	Type            enums.DeliveryType
	Provider        enums.CourierProvider
	ActorUserID     uuid.UUID
	ActorCenterID   *uuid.UUID
	CustomerAddress types.Address
	CustomerContact types.Contact
	ScheduledPickup *time.Time
}

// CancelInput cancels a leg that has not progressed past driver dispatch.
type CancelInput struct {
	DeliveryID    uuid.UUID
	ActorUserID   uuid.UUID
	ActorCenterID *uuid.UUID
	ActorRole     string
}

// GetInput identifies a leg and the actor reading it.
type GetInput struct {
	DeliveryID    uuid.UUID
	ActorUserID   uuid.UUID
	ActorCenterID *uuid.UUID
	ActorRole     string
}

// ListByJobInput lists all legs of one job.
type ListByJobInput struct {
	JobID         uuid.UUID
	ActorUserID   uuid.UUID
	ActorCenterID *uuid.UUID
	ActorRole     string
}

func (s *service) Schedule(ctx context.Context, input ScheduleInput) (*models.DeliveryRequest, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery type")
	}
	if !input.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid courier provider")
	}
	if input.CustomerAddress.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer address required")
	}

	provider, err := s.providers.Get(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve courier provider")
	}

	job, err := s.loadJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeLeg(job, input); err != nil {
		return nil, err
	}
	if err := gateJobForLeg(job, input.Type); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindOpenLeg(ctx, job.ID, input.Type); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			"an active "+input.Type.String()+" leg already exists for this job")
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing legs")
	}

	center, err := s.centers.FindByID(ctx, job.RepairCenterID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair center not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair center")
	}

	leg := buildLeg(job, center, input)

	booking, err := provider.Book(ctx, couriers.BookingRequest{
		Reference:       leg.reference,
		PickupAddress:   leg.pickupAddress,
		PickupContact:   leg.pickupContact,
		DropoffAddress:  leg.dropoffAddress,
		DropoffContact:  leg.dropoffContact,
		ScheduledPickup: input.ScheduledPickup,
	})
	if err != nil {
		return nil, err
	}

	commission := s.deliveryCommissionCents(booking.EstimatedCostCents)
	delivery := &models.DeliveryRequest{
		JobID:               job.ID,
		Type:                input.Type,
		Provider:            input.Provider,
		ProviderOrderID:     booking.ProviderOrderID,
		PickupAddress:       leg.pickupAddress,
		PickupContact:       leg.pickupContact,
		DeliveryAddress:     leg.dropoffAddress,
		DeliveryContact:     leg.dropoffContact,
		EstimatedCostCents:  booking.EstimatedCostCents,
		AppCommissionCents:  commission,
		Status:              booking.Status,
		ScheduledPickupTime: input.ScheduledPickup,
	}
	if booking.TrackingReference != "" {
		delivery.TrackingReference = &booking.TrackingReference
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		jobsRepo := s.jobsRepo.WithTx(tx)

		current, err := jobsRepo.FindByIDForUpdate(ctx, job.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload job")
		}
		if err := gateJobForLeg(current, input.Type); err != nil {
			return err
		}

		if _, err := repo.Create(ctx, delivery); err != nil {
			if db.IsUniqueViolation(err, "idx_delivery_provider_order") {
				return pkgerrors.New(pkgerrors.CodeConflict, "provider order already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
		}
		if err := repo.AppendHistory(ctx, &models.DeliveryStatusHistory{
			DeliveryID: delivery.ID,
			Status:     delivery.Status,
			RawStatus:  "booked",
			RecordedAt: time.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record booking history")
		}

		// booking never moves the job; the courier's delivered webhook is
		// what advances quote_accepted to pickup_scheduled
		return nil
	})
	if err != nil {
		// booking exists provider-side with no local row; release it
		if cancelErr := provider.Cancel(ctx, booking.ProviderOrderID); cancelErr != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"provider":          input.Provider.String(),
				"provider_order_id": booking.ProviderOrderID,
			})
			s.logg.Error(logCtx, "orphaned courier booking could not be cancelled", cancelErr)
		}
		return nil, err
	}
	return delivery, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.DeliveryID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}

	delivery, err := s.repo.FindByID(ctx, input.DeliveryID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
	}

	job, err := s.loadJob(ctx, delivery.JobID)
	if err != nil {
		return err
	}
	if err := s.authorizeRead(job, input.ActorUserID, input.ActorCenterID, input.ActorRole); err != nil {
		return err
	}
	if !delivery.Status.Cancellable() {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"delivery can no longer be cancelled in status "+delivery.Status.String())
	}

	provider, err := s.providers.Get(delivery.Provider)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve courier provider")
	}
	if err := provider.Cancel(ctx, delivery.ProviderOrderID); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, delivery.ID, map[string]any{
			"status": enums.DeliveryStatusCancelled,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel delivery")
		}
		if err := repo.AppendHistory(ctx, &models.DeliveryStatusHistory{
			DeliveryID: delivery.ID,
			Status:     enums.DeliveryStatusCancelled,
			RawStatus:  "cancelled_by_platform",
			RecordedAt: time.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation history")
		}
		// the job never left quote_accepted, so a cancelled pickup leg needs
		// no rollback; the customer can simply book again
		return nil
	})
}

func (s *service) Get(ctx context.Context, input GetInput) (*models.DeliveryRequest, error) {
	delivery, _, err := s.loadAuthorized(ctx, input)
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *service) ListByJob(ctx context.Context, input ListByJobInput) ([]models.DeliveryRequest, error) {
	job, err := s.loadJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(job, input.ActorUserID, input.ActorCenterID, input.ActorRole); err != nil {
		return nil, err
	}
	legs, err := s.repo.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliveries")
	}
	return legs, nil
}

func (s *service) Track(ctx context.Context, input GetInput) ([]models.DeliveryStatusHistory, error) {
	delivery, _, err := s.loadAuthorized(ctx, input)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, delivery.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivery history")
	}
	return entries, nil
}

func (s *service) loadAuthorized(ctx context.Context, input GetInput) (*models.DeliveryRequest, *models.RepairJob, error) {
	if input.DeliveryID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	delivery, err := s.repo.FindByID(ctx, input.DeliveryID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
	}
	job, err := s.loadJob(ctx, delivery.JobID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorizeRead(job, input.ActorUserID, input.ActorCenterID, input.ActorRole); err != nil {
		return nil, nil, err
	}
	return delivery, job, nil
}

func (s *service) loadJob(ctx context.Context, jobID uuid.UUID) (*models.RepairJob, error) {
	job, err := s.jobsRepo.FindByID(ctx, jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	return job, nil
}

// authorizeLeg enforces who can book each leg: customers send their device
// in, centers send it back.
func (s *service) authorizeLeg(job *models.RepairJob, input ScheduleInput) error {
	switch input.Type {
	case enums.DeliveryTypePickup:
		if job.CustomerID != input.ActorUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to customer")
		}
	case enums.DeliveryTypeReturn:
		if input.ActorCenterID == nil || job.RepairCenterID != *input.ActorCenterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to repair center")
		}
	}
	return nil
}

func (s *service) authorizeRead(job *models.RepairJob, userID uuid.UUID, centerID *uuid.UUID, role string) error {
	switch {
	case role == "admin":
		return nil
	case job.CustomerID == userID:
		return nil
	case centerID != nil && job.RepairCenterID == *centerID:
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "delivery does not belong to actor")
}

func gateJobForLeg(job *models.RepairJob, legType enums.DeliveryType) error {
	switch legType {
	case enums.DeliveryTypePickup:
		if job.Status != enums.JobStatusQuoteAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"pickup cannot be scheduled while job is "+job.Status.String())
		}
	case enums.DeliveryTypeReturn:
		if job.Status != enums.JobStatusRepairCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"return cannot be scheduled while job is "+job.Status.String())
		}
	}
	return nil
}

type legPlan struct {
	reference      string
	pickupAddress  types.Address
	pickupContact  types.Contact
	dropoffAddress types.Address
	dropoffContact types.Contact
}

// buildLeg derives the leg endpoints: pickup runs customer -> center,
// return runs center -> customer.
func buildLeg(job *models.RepairJob, center *models.RepairCenter, input ScheduleInput) legPlan {
	centerContact := types.Contact{Name: center.ContactName}
	if center.Phone != nil {
		centerContact.Phone = *center.Phone
	}

	plan := legPlan{reference: job.ID.String() + ":" + input.Type.String()}
	if input.Type == enums.DeliveryTypePickup {
		plan.pickupAddress = input.CustomerAddress
		plan.pickupContact = input.CustomerContact
		plan.dropoffAddress = center.Address
		plan.dropoffContact = centerContact
		return plan
	}
	plan.pickupAddress = center.Address
	plan.pickupContact = centerContact
	plan.dropoffAddress = input.CustomerAddress
	plan.dropoffContact = input.CustomerContact
	return plan
}

func (s *service) deliveryCommissionCents(estimatedCents int64) int64 {
	return decimal.NewFromInt(estimatedCents).Mul(s.commission).Round(0).IntPart()
}
