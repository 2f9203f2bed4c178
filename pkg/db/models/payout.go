package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/enums"
)

// Payout is the settlement record created when a job completes. Gross is
// the repair amount, commission the platform cut, net the center's share.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID           uuid.UUID          `gorm:"column:job_id;type:uuid;not null;uniqueIndex:idx_payout_job"`
	RepairCenterID  uuid.UUID          `gorm:"column:repair_center_id;type:uuid;not null;index"`
	GrossCents      int64              `gorm:"column:gross_cents;not null"`
	CommissionCents int64              `gorm:"column:commission_cents;not null"`
	NetCents        int64              `gorm:"column:net_cents;not null"`
	Currency        enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status          enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Method          *string            `gorm:"column:method"`
	Reference       *string            `gorm:"column:reference"`
	FailureReason   *string            `gorm:"column:failure_reason"`
	PayoutDate      *time.Time         `gorm:"column:payout_date"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
