package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dcastano/repairhub-backend/internal/notifications"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PayoutCreator opens a pending settlement payout when a job completes.
// Implemented by the settlement service; runs inside the completion
// transaction so a job can never be completed without its payout row.
type PayoutCreator interface {
	CreateForJob(ctx context.Context, tx *gorm.DB, job *models.RepairJob) (*models.Payout, error)
}

// Service defines the repair job lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.RepairJob, error)
	Get(ctx context.Context, input GetInput) (*models.RepairJob, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	AcceptQuote(ctx context.Context, input AcceptQuoteInput) error
	Cancel(ctx context.Context, input CancelInput) error
	ProposeAdjustment(ctx context.Context, input ProposeAdjustmentInput) (*AdjustmentQuote, error)
	ResolveAdjustment(ctx context.Context, input ResolveAdjustmentInput) error
	MarkRepairCompleted(ctx context.Context, input MarkRepairCompletedInput) error
	ConfirmDeviceReturned(ctx context.Context, input ConfirmDeviceReturnedInput) (*ConfirmationResult, error)
	ConfirmSatisfaction(ctx context.Context, input ConfirmSatisfactionInput) (*ConfirmationResult, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	payouts    PayoutCreator
	dispatcher notifications.Dispatcher
	feeRate    decimal.Decimal
}

// ServiceParams wires the job service dependencies.
type ServiceParams struct {
	Repo             Repository
	TxRunner         txRunner
	Payouts          PayoutCreator
	Dispatcher       notifications.Dispatcher
	RepairCommission decimal.Decimal
}

// NewService builds the job lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout creator required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &service{
		repo:       params.Repo,
		tx:         params.TxRunner,
		payouts:    params.Payouts,
		dispatcher: params.Dispatcher,
		feeRate:    params.RepairCommission,
	}, nil
}

// CreateInput opens a new repair job against a center's quote.
type CreateInput struct {
	CustomerID      uuid.UUID
	RepairCenterID  uuid.UUID      `json:"repair_center_id" validate:"required"`
	ApplianceType   string         `json:"appliance_type" validate:"required"`
	IssueSummary    *string        `json:"issue_summary"`
	QuotedCostCents int64          `json:"quoted_cost_cents" validate:"required,gt=0"`
	Currency        enums.Currency `json:"currency"`
}

// ListInput filters the jobs visible to the actor.
type ListInput struct {
	ActorUserID   uuid.UUID
	ActorCenterID *uuid.UUID
	ActorRole     string
	Status        enums.JobStatus
	Limit         int
	Cursor        string
}

// ListResult wraps jobs and the cursor for the next page.
type ListResult struct {
	Items  []models.RepairJob `json:"items"`
	Cursor string             `json:"cursor"`
}

// GetInput identifies a job and the actor reading it.
type GetInput struct {
	JobID         uuid.UUID
	ActorUserID   uuid.UUID
	ActorCenterID *uuid.UUID
	ActorRole     string
}

// AcceptQuoteInput captures a customer accepting the quoted cost.
type AcceptQuoteInput struct {
	JobID       uuid.UUID
	ActorUserID uuid.UUID
}

// CancelInput captures a customer cancelling a job before pickup.
type CancelInput struct {
	JobID       uuid.UUID
	ActorUserID uuid.UUID
}

// ProposeAdjustmentInput is a repair center proposing a new final cost.
type ProposeAdjustmentInput struct {
	JobID          uuid.UUID
	ActorUserID    uuid.UUID
	ActorCenterID  uuid.UUID
	FinalCostCents int64
	Reason         string
}

// AdjustmentQuote reports the proposal along with the total the customer
// would pay if they approve (final cost plus the platform fee). Display
// only; nothing is charged at this stage.
type AdjustmentQuote struct {
	JobID              uuid.UUID `json:"job_id"`
	FinalCostCents     int64     `json:"final_cost_cents"`
	CustomerTotalCents int64     `json:"customer_total_cents"`
}

// ResolveAdjustmentInput is the customer's approve/decline decision.
type ResolveAdjustmentInput struct {
	JobID       uuid.UUID
	ActorUserID uuid.UUID
	Approve     bool
}

// MarkRepairCompletedInput is center staff reporting the repair finished.
type MarkRepairCompletedInput struct {
	JobID         uuid.UUID
	ActorUserID   uuid.UUID
	ActorCenterID uuid.UUID
}

// ConfirmDeviceReturnedInput is the customer's first completion confirmation.
type ConfirmDeviceReturnedInput struct {
	JobID       uuid.UUID
	ActorUserID uuid.UUID
}

// ConfirmSatisfactionInput is the customer's second completion confirmation.
type ConfirmSatisfactionInput struct {
	JobID       uuid.UUID
	ActorUserID uuid.UUID
	Rating      int
	Feedback    *string
}

// ConfirmationResult reports the job state after a gate confirmation.
type ConfirmationResult struct {
	JobID     uuid.UUID       `json:"job_id"`
	Status    enums.JobStatus `json:"status"`
	Completed bool            `json:"completed"`
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.RepairJob, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.RepairCenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repair center id required")
	}
	if strings.TrimSpace(input.ApplianceType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appliance type required")
	}
	if input.QuotedCostCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quoted cost must be positive")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	job := &models.RepairJob{
		CustomerID:      input.CustomerID,
		RepairCenterID:  input.RepairCenterID,
		ApplianceType:   strings.TrimSpace(input.ApplianceType),
		IssueSummary:    input.IssueSummary,
		Currency:        currency,
		QuotedCostCents: input.QuotedCostCents,
		Status:          enums.JobStatusRequested,
	}
	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job")
	}
	return created, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	params := listJobsParams{
		Status: input.Status,
		Limit:  input.Limit,
	}
	switch {
	case input.ActorRole == "admin":
	case input.ActorCenterID != nil:
		params.CenterID = input.ActorCenterID
	default:
		if input.ActorUserID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
		}
		params.CustomerID = &input.ActorUserID
	}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list jobs")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Get(ctx context.Context, input GetInput) (*models.RepairJob, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	job, err := s.repo.FindByID(ctx, input.JobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}

	switch {
	case input.ActorRole == "admin":
	case job.CustomerID == input.ActorUserID:
	case input.ActorCenterID != nil && job.RepairCenterID == *input.ActorCenterID:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to actor")
	}
	return job, nil
}

func (s *service) AcceptQuote(ctx context.Context, input AcceptQuoteInput) error {
	if input.JobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if input.ActorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadOwnedJob(ctx, repo, input.JobID, input.ActorUserID)
		if err != nil {
			return err
		}
		if job.CostAdjustmentPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a cost adjustment is awaiting resolution")
		}
		if err := guardTransition(job.Status, enums.JobStatusQuoteAccepted); err != nil {
			return err
		}
		return repo.Update(ctx, job.ID, map[string]any{
			"status": enums.JobStatusQuoteAccepted,
		})
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.JobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if input.ActorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadOwnedJob(ctx, repo, input.JobID, input.ActorUserID)
		if err != nil {
			return err
		}
		if err := guardTransition(job.Status, enums.JobStatusCancelled); err != nil {
			return err
		}
		now := time.Now().UTC()
		return repo.Update(ctx, job.ID, map[string]any{
			"status":       enums.JobStatusCancelled,
			"cancelled_at": now,
		})
	})
}

func (s *service) ProposeAdjustment(ctx context.Context, input ProposeAdjustmentInput) (*AdjustmentQuote, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if input.ActorCenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "repair center context missing")
	}
	if input.FinalCostCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjusted cost must be positive")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason required")
	}

	var quote *AdjustmentQuote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadCenterJob(ctx, repo, input.JobID, input.ActorCenterID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job is already "+job.Status.String())
		}
		if job.CostAdjustmentPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a cost adjustment is already pending")
		}
		if job.Status != enums.JobStatusPickupScheduled &&
			job.Status != enums.JobStatusInRepair &&
			job.Status != enums.JobStatusQuoteNegotiating {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"cost adjustment not allowed while job is "+job.Status.String())
		}

		updates := map[string]any{
			"final_cost_cents":         input.FinalCostCents,
			"cost_adjustment_reason":   reason,
			"cost_adjustment_pending":  true,
			"cost_adjustment_approved": nil,
		}
		if job.Status != enums.JobStatusQuoteNegotiating {
			updates["status"] = enums.JobStatusQuoteNegotiating
		}
		if err := repo.Update(ctx, job.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store cost adjustment")
		}

		quote = &AdjustmentQuote{
			JobID:              job.ID,
			FinalCostCents:     input.FinalCostCents,
			CustomerTotalCents: s.customerTotalCents(input.FinalCostCents),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, notifications.Event{
		Type:           enums.NotificationTypeCostAdjustment,
		JobID:          input.JobID,
		RepairCenterID: &input.ActorCenterID,
		Title:          "Cost adjustment requested",
	})
	return quote, nil
}

func (s *service) ResolveAdjustment(ctx context.Context, input ResolveAdjustmentInput) error {
	if input.JobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}

	var centerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadOwnedJob(ctx, repo, input.JobID, input.ActorUserID)
		if err != nil {
			return err
		}
		if !job.CostAdjustmentPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no cost adjustment awaiting resolution")
		}
		centerID = job.RepairCenterID

		if input.Approve {
			if err := guardTransition(job.Status, enums.JobStatusInRepair); err != nil {
				return err
			}
			return repo.Update(ctx, job.ID, map[string]any{
				"cost_adjustment_pending":  false,
				"cost_adjustment_approved": true,
				"status":                   enums.JobStatusInRepair,
			})
		}

		// Declined: the proposed final cost is withdrawn and the job stays
		// in negotiation for a new proposal.
		return repo.Update(ctx, job.ID, map[string]any{
			"cost_adjustment_pending":  false,
			"cost_adjustment_approved": false,
			"final_cost_cents":         nil,
			"status":                   enums.JobStatusQuoteNegotiating,
		})
	})
	if err != nil {
		return err
	}

	s.dispatcher.Dispatch(ctx, notifications.Event{
		Type:           enums.NotificationTypeAdjustmentResolved,
		JobID:          input.JobID,
		RepairCenterID: &centerID,
		Title:          "Cost adjustment resolved",
	})
	return nil
}

func (s *service) MarkRepairCompleted(ctx context.Context, input MarkRepairCompletedInput) error {
	if input.JobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if input.ActorCenterID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "repair center context missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadCenterJob(ctx, repo, input.JobID, input.ActorCenterID)
		if err != nil {
			return err
		}
		if job.CostAdjustmentPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a cost adjustment is awaiting resolution")
		}
		if err := guardTransition(job.Status, enums.JobStatusRepairCompleted); err != nil {
			return err
		}
		return repo.Update(ctx, job.ID, map[string]any{
			"status": enums.JobStatusRepairCompleted,
		})
	})
}

func (s *service) ConfirmDeviceReturned(ctx context.Context, input ConfirmDeviceReturnedInput) (*ConfirmationResult, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}

	var result *ConfirmationResult
	var centerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadOwnedJobForUpdate(ctx, repo, input.JobID, input.ActorUserID)
		if err != nil {
			return err
		}
		centerID = job.RepairCenterID

		if job.DeviceReturnedConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "device return already confirmed")
		}
		if job.Status != enums.JobStatusReadyForReturn && job.Status != enums.JobStatusReturned {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"device return cannot be confirmed while job is "+job.Status.String())
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"device_returned_confirmed": true,
			"device_returned_at":        now,
		}
		if job.Status == enums.JobStatusReadyForReturn {
			updates["status"] = enums.JobStatusReturned
		}

		job.DeviceReturnedConfirmed = true
		job.Status = enums.JobStatusReturned
		completed, err := s.completeIfConfirmed(ctx, tx, repo, job, updates, now)
		if err != nil {
			return err
		}
		result = &ConfirmationResult{JobID: job.ID, Status: job.Status, Completed: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fanOutConfirmation(ctx, enums.NotificationTypeDeviceReturned, input.JobID, centerID, result.Completed)
	return result, nil
}

func (s *service) ConfirmSatisfaction(ctx context.Context, input ConfirmSatisfactionInput) (*ConfirmationResult, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}

	var result *ConfirmationResult
	var centerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		job, err := loadOwnedJobForUpdate(ctx, repo, input.JobID, input.ActorUserID)
		if err != nil {
			return err
		}
		centerID = job.RepairCenterID

		if job.SatisfactionConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "satisfaction already confirmed")
		}
		// Order invariant: the device must be back before the work can be judged.
		if !job.DeviceReturnedConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "device return must be confirmed first")
		}
		if job.Status != enums.JobStatusReturned {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"satisfaction cannot be confirmed while job is "+job.Status.String())
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"satisfaction_confirmed": true,
			"satisfaction_at":        now,
			"satisfaction_rating":    input.Rating,
		}
		if input.Feedback != nil && strings.TrimSpace(*input.Feedback) != "" {
			updates["satisfaction_feedback"] = strings.TrimSpace(*input.Feedback)
		}

		job.SatisfactionConfirmed = true
		completed, err := s.completeIfConfirmed(ctx, tx, repo, job, updates, now)
		if err != nil {
			return err
		}
		result = &ConfirmationResult{JobID: job.ID, Status: job.Status, Completed: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fanOutConfirmation(ctx, enums.NotificationTypeSatisfactionConfirmed, input.JobID, centerID, result.Completed)
	return result, nil
}

// completeIfConfirmed applies the confirmation updates and, when both gate
// flags are now true, atomically moves the job to completed and opens the
// settlement payout. The caller holds the job row lock, so the flag state
// checked here cannot race a concurrent confirmation.
func (s *service) completeIfConfirmed(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	job *models.RepairJob,
	updates map[string]any,
	now time.Time,
) (bool, error) {
	complete := job.DeviceReturnedConfirmed && job.SatisfactionConfirmed
	if complete {
		if err := guardTransition(job.Status, enums.JobStatusCompleted); err != nil {
			return false, err
		}
		updates["status"] = enums.JobStatusCompleted
		updates["completion_date"] = now
		job.Status = enums.JobStatusCompleted
		job.CompletionDate = &now
	}

	if err := repo.Update(ctx, job.ID, updates); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store confirmation")
	}

	if complete {
		if _, err := s.payouts.CreateForJob(ctx, tx, job); err != nil {
			return false, err
		}
	}
	return complete, nil
}

func (s *service) fanOutConfirmation(ctx context.Context, event enums.NotificationType, jobID, centerID uuid.UUID, completed bool) {
	s.dispatcher.Dispatch(ctx, notifications.Event{
		Type:           event,
		JobID:          jobID,
		RepairCenterID: &centerID,
		Title:          "Customer confirmation received",
	})
	if completed {
		s.dispatcher.Dispatch(ctx, notifications.Event{
			Type:           enums.NotificationTypeJobCompleted,
			JobID:          jobID,
			RepairCenterID: &centerID,
			Title:          "Job completed, funds releasable",
		})
	}
}

func (s *service) customerTotalCents(finalCostCents int64) int64 {
	cost := decimal.NewFromInt(finalCostCents)
	total := cost.Mul(decimal.NewFromInt(1).Add(s.feeRate))
	return total.Round(0).IntPart()
}

func loadOwnedJob(ctx context.Context, repo Repository, jobID, actorUserID uuid.UUID) (*models.RepairJob, error) {
	job, err := repo.FindByID(ctx, jobID)
	return authorizeOwner(job, err, actorUserID)
}

func loadOwnedJobForUpdate(ctx context.Context, repo Repository, jobID, actorUserID uuid.UUID) (*models.RepairJob, error) {
	job, err := repo.FindByIDForUpdate(ctx, jobID)
	return authorizeOwner(job, err, actorUserID)
}

func authorizeOwner(job *models.RepairJob, err error, actorUserID uuid.UUID) (*models.RepairJob, error) {
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	if job.CustomerID != actorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to customer")
	}
	return job, nil
}

func loadCenterJob(ctx context.Context, repo Repository, jobID, centerID uuid.UUID) (*models.RepairJob, error) {
	job, err := repo.FindByID(ctx, jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	if job.RepairCenterID != centerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to repair center")
	}
	return job, nil
}
