package payments

import (
	"context"
	"strings"

	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records checkout sessions opened for a job's repair cost. The
// provider's webhook later settles each session.
type Service interface {
	RecordCheckout(ctx context.Context, input RecordCheckoutInput) (*models.Payment, error)
	ListForJob(ctx context.Context, input ListForJobInput) ([]models.Payment, error)
}

type service struct {
	repo     Repository
	jobsRepo jobs.Repository
}

// NewService wires the payments service.
func NewService(repo Repository, jobsRepo jobs.Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
	}
	if jobsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "jobs repository required")
	}
	return &service{repo: repo, jobsRepo: jobsRepo}, nil
}

// RecordCheckoutInput registers a provider checkout session for a job.
type RecordCheckoutInput struct {
	JobID       uuid.UUID
	ActorUserID uuid.UUID
	Provider    string `json:"provider" validate:"required"`
	SessionID   string `json:"session_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
}

// ListForJobInput lists the payment attempts of one job.
type ListForJobInput struct {
	JobID         uuid.UUID
	ActorUserID   uuid.UUID
	ActorCenterID *uuid.UUID
	ActorRole     string
}

func (s *service) RecordCheckout(ctx context.Context, input RecordCheckoutInput) (*models.Payment, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	provider := strings.TrimSpace(input.Provider)
	sessionID := strings.TrimSpace(input.SessionID)
	if provider == "" || sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider and session id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	job, err := s.jobsRepo.FindByID(ctx, input.JobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	if job.CustomerID != input.ActorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job does not belong to customer")
	}

	payment := &models.Payment{
		JobID:             job.ID,
		Provider:          provider,
		ProviderSessionID: &sessionID,
		Status:            enums.PaymentStatusPending,
		AmountCents:       input.AmountCents,
		Currency:          job.Currency,
	}
	created, err := s.repo.Create(ctx, payment)
	if err != nil {
		if db.IsUniqueViolation(err, "idx_payment_provider_session") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout session already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record checkout")
	}
	return created, nil
}

func (s *service) ListForJob(ctx context.Context, input ListForJobInput) ([]models.Payment, error) {
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}

	job, err := s.jobsRepo.FindByID(ctx, input.JobID)
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

	rows, err := s.repo.FindByJob(ctx, job.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}
