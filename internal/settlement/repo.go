package settlement

import (
	"context"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists payouts and reads the payout destinations they
// settle against.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	// FindByIDForUpdate locks the payout row so concurrent batch runs
	// cannot settle the same item twice.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByCenter(ctx context.Context, params listPayoutsParams) ([]models.Payout, *pagination.Cursor, error)
	ActiveBankAccount(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settlement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listPayoutsParams struct {
	CenterID uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
	Status   string
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListByCenter(ctx context.Context, params listPayoutsParams) ([]models.Payout, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("repair_center_id = ?", params.CenterID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var payouts []models.Payout
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&payouts).Error; err != nil {
		return nil, nil, err
	}

	if len(payouts) > normalized {
		next := payouts[normalized]
		payouts = payouts[:normalized]
		return payouts, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return payouts, nil, nil
}

func (r *repository) ActiveBankAccount(ctx context.Context, centerID uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("repair_center_id = ? AND active", centerID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}
