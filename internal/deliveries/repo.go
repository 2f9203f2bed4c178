package deliveries

import (
	"context"
	"time"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists delivery legs and their status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.DeliveryRequest) (*models.DeliveryRequest, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRequest, error)
	// FindByProviderOrderIDForUpdate locks the leg keyed by the provider's
	// order id, the identity webhook events carry.
	FindByProviderOrderIDForUpdate(ctx context.Context, provider enums.CourierProvider, providerOrderID string) (*models.DeliveryRequest, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.DeliveryRequest, error)
	FindOpenLeg(ctx context.Context, jobID uuid.UUID, legType enums.DeliveryType) (*models.DeliveryRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// SetPickupTimeIfUnset and SetDeliveryTimeIfUnset write the actual
	// timestamps at most once, so replayed webhook events cannot move them.
	SetPickupTimeIfUnset(ctx context.Context, id uuid.UUID, at time.Time) error
	SetDeliveryTimeIfUnset(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendHistory(ctx context.Context, entry *models.DeliveryStatusHistory) error
	ListHistory(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryStatusHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deliveries repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, delivery *models.DeliveryRequest) (*models.DeliveryRequest, error) {
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return nil, err
	}
	return delivery, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRequest, error) {
	var delivery models.DeliveryRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) FindByProviderOrderIDForUpdate(ctx context.Context, provider enums.CourierProvider, providerOrderID string) (*models.DeliveryRequest, error) {
	var delivery models.DeliveryRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_order_id = ?", provider, providerOrderID).
		First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.DeliveryRequest, error) {
	var deliveries []models.DeliveryRequest
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) FindOpenLeg(ctx context.Context, jobID uuid.UUID, legType enums.DeliveryType) (*models.DeliveryRequest, error) {
	var delivery models.DeliveryRequest
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND type = ? AND status NOT IN ?", jobID, legType, []enums.DeliveryStatus{
			enums.DeliveryStatusFailed,
			enums.DeliveryStatusCancelled,
		}).
		First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) SetPickupTimeIfUnset(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryRequest{}).
		Where("id = ?", id).
		UpdateColumn("actual_pickup_time", gorm.Expr("COALESCE(actual_pickup_time, ?)", at)).Error
}

func (r *repository) SetDeliveryTimeIfUnset(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryRequest{}).
		Where("id = ?", id).
		UpdateColumn("actual_delivery_time", gorm.Expr("COALESCE(actual_delivery_time, ?)", at)).Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.DeliveryStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryStatusHistory, error) {
	var entries []models.DeliveryStatusHistory
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("recorded_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
