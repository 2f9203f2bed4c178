package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/enums"
	"github.com/dcastano/repairhub-backend/pkg/types"
)

// DeliveryRequest is one courier shipment leg (pickup or return) of a job.
// Each leg is tracked independently against its provider-side order id.
type DeliveryRequest struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID           uuid.UUID             `gorm:"column:job_id;type:uuid;not null"`
	Type            enums.DeliveryType    `gorm:"column:type;type:text;not null"`
	Provider        enums.CourierProvider `gorm:"column:provider;type:text;not null"`
	ProviderOrderID string                `gorm:"column:provider_order_id;not null;uniqueIndex:idx_delivery_provider_order"`

	PickupAddress   types.Address `gorm:"column:pickup_address;type:jsonb;serializer:json"`
	PickupContact   types.Contact `gorm:"column:pickup_contact;type:jsonb;serializer:json"`
	DeliveryAddress types.Address `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	DeliveryContact types.Contact `gorm:"column:delivery_contact;type:jsonb;serializer:json"`

	EstimatedCostCents int64  `gorm:"column:estimated_cost_cents;not null"`
	ActualCostCents    *int64 `gorm:"column:actual_cost_cents"`
	AppCommissionCents int64  `gorm:"column:app_commission_cents;not null"`

	Status            enums.DeliveryStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	CashPaymentStatus enums.CashPaymentStatus `gorm:"column:cash_payment_status;type:text;not null;default:'not_due'"`

	ScheduledPickupTime *time.Time `gorm:"column:scheduled_pickup_time"`
	ActualPickupTime    *time.Time `gorm:"column:actual_pickup_time"`
	ActualDeliveryTime  *time.Time `gorm:"column:actual_delivery_time"`
	TrackingReference   *string    `gorm:"column:tracking_reference"`

	History []DeliveryStatusHistory `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
