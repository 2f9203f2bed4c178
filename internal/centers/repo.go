package centers

import (
	"context"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists repair centers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, center *models.RepairCenter) (*models.RepairCenter, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a centers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, center *models.RepairCenter) (*models.RepairCenter, error) {
	if err := r.db.WithContext(ctx).Create(center).Error; err != nil {
		return nil, err
	}
	return center, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RepairCenter, error) {
	var center models.RepairCenter
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&center).Error
	if err != nil {
		return nil, err
	}
	return &center, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.RepairCenter{}).
		Where("id = ?", id).
		Updates(updates).Error
}
