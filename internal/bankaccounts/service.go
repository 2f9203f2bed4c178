package bankaccounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/db/models"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type centerSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error)
}

// Service guards the payout destination of each repair center: one active
// account, the holder name matching the registered business, and an edit
// lock for a configured number of days after every change.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.BankAccount, error)
	GetActive(ctx context.Context, centerID uuid.UUID) (*AccountView, error)
}

type service struct {
	repo     Repository
	centers  centerSource
	tx       txRunner
	lockDays int
}

// ServiceParams wires the bank account guard dependencies.
type ServiceParams struct {
	Repo     Repository
	Centers  centerSource
	TxRunner txRunner
	LockDays int
}

// NewService builds the bank account guard.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bank accounts repository required")
	}
	if params.Centers == nil {
		return nil, fmt.Errorf("centers source required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.LockDays < 0 {
		return nil, fmt.Errorf("lock days must be non-negative")
	}
	return &service{
		repo:     params.Repo,
		centers:  params.Centers,
		tx:       params.TxRunner,
		lockDays: params.LockDays,
	}, nil
}

// SubmitInput registers or replaces the center's payout account.
type SubmitInput struct {
	CenterID          uuid.UUID
	BankName          string `json:"bank_name" validate:"required"`
	AccountNumber     string `json:"account_number" validate:"required"`
	AccountHolderName string `json:"account_holder_name" validate:"required"`
}

// AccountView is the active account plus its remaining lock window.
type AccountView struct {
	Account           *models.BankAccount `json:"account"`
	DaysUntilEditable int                 `json:"days_until_editable"`
}

// DaysUntilEditable reports how many whole days remain before an account
// last updated at the given time may be changed again. Zero means
// editable now.
func DaysUntilEditable(lastUpdatedAt time.Time, lockDays int, now time.Time) int {
	unlockAt := lastUpdatedAt.Add(time.Duration(lockDays) * 24 * time.Hour)
	if !now.Before(unlockAt) {
		return 0
	}
	remaining := unlockAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.BankAccount, error) {
	if input.CenterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repair center id required")
	}
	bankName := strings.TrimSpace(input.BankName)
	accountNumber := strings.TrimSpace(input.AccountNumber)
	holderName := strings.TrimSpace(input.AccountHolderName)
	if bankName == "" || accountNumber == "" || holderName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank name, account number and holder name are required")
	}

	center, err := s.centers.FindByID(ctx, input.CenterID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair center not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair center")
	}
	if !strings.EqualFold(holderName, strings.TrimSpace(center.BusinessName)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			"account holder name must match the registered business name")
	}

	now := time.Now().UTC()
	var created *models.BankAccount
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// the lock window is re-checked under lock so two concurrent
		// submits cannot both slip through
		existing, err := repo.FindActiveByCenterForUpdate(ctx, input.CenterID)
		switch {
		case err == gorm.ErrRecordNotFound:
			// first account, nothing to replace
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active bank account")
		default:
			if days := DaysUntilEditable(existing.LastUpdatedAt, s.lockDays, now); days > 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("bank account is locked for %d more day(s)", days)).
					WithDetails(map[string]any{"days_until_editable": days})
			}
			if err := repo.Deactivate(ctx, existing.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate bank account")
			}
		}

		account := &models.BankAccount{
			RepairCenterID:    input.CenterID,
			BankName:          bankName,
			AccountNumber:     accountNumber,
			AccountHolderName: holderName,
			Active:            true,
			WhitelistedAt:     now,
			LastUpdatedAt:     now,
		}
		stored, err := repo.Create(ctx, account)
		if err != nil {
			if db.IsUniqueViolation(err, "idx_bank_accounts_active_center") {
				return pkgerrors.New(pkgerrors.CodeConflict, "another active bank account exists for this center")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bank account")
		}
		created = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) GetActive(ctx context.Context, centerID uuid.UUID) (*AccountView, error) {
	if centerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repair center id required")
	}
	account, err := s.repo.FindActiveByCenter(ctx, centerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active bank account on file")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	return &AccountView{
		Account:           account,
		DaysUntilEditable: DaysUntilEditable(account.LastUpdatedAt, s.lockDays, time.Now().UTC()),
	}, nil
}
