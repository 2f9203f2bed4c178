package bankaccounts

import (
	"context"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists payout bank accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.BankAccount) (*models.BankAccount, error)
	FindActiveByCenter(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error)
	// FindActiveByCenterForUpdate locks the active row so the edit lock
	// window is checked against a stable snapshot.
	FindActiveByCenterForUpdate(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bank accounts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.BankAccount) (*models.BankAccount, error) {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (r *repository) FindActiveByCenter(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("repair_center_id = ? AND active", centerID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindActiveByCenterForUpdate(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("repair_center_id = ? AND active", centerID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("id = ?", id).
		UpdateColumn("active", false).Error
}
