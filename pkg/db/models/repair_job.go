package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/enums"
)

// RepairJob represents one customer appliance repair engagement tracked
// end-to-end from quote to settlement.
type RepairJob struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID      `gorm:"column:customer_id;type:uuid;not null"`
	RepairCenterID  uuid.UUID      `gorm:"column:repair_center_id;type:uuid;not null"`
	ApplianceType   string         `gorm:"column:appliance_type;not null"`
	IssueSummary    *string        `gorm:"column:issue_summary"`
	Currency        enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`
	QuotedCostCents int64          `gorm:"column:quoted_cost_cents;not null"`
	// FinalCostCents is set only after either no adjustment occurred or the
	// adjustment was approved by the customer.
	FinalCostCents *int64          `gorm:"column:final_cost_cents"`
	Status         enums.JobStatus `gorm:"column:status;type:text;not null;default:'requested'"`

	CostAdjustmentReason   *string `gorm:"column:cost_adjustment_reason"`
	CostAdjustmentApproved *bool   `gorm:"column:cost_adjustment_approved"`
	CostAdjustmentPending  bool    `gorm:"column:cost_adjustment_pending;not null;default:false"`

	DeviceReturnedConfirmed bool       `gorm:"column:device_returned_confirmed;not null;default:false"`
	DeviceReturnedAt        *time.Time `gorm:"column:device_returned_at"`

	SatisfactionConfirmed bool       `gorm:"column:satisfaction_confirmed;not null;default:false"`
	SatisfactionAt        *time.Time `gorm:"column:satisfaction_at"`
	SatisfactionRating    *int       `gorm:"column:satisfaction_rating"`
	SatisfactionFeedback  *string    `gorm:"column:satisfaction_feedback"`

	CompletionDate *time.Time `gorm:"column:completion_date"`
	CancelledAt    *time.Time `gorm:"column:cancelled_at"`

	Deliveries []DeliveryRequest `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
	Payment    *Payment          `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// SettlementGrossCents returns the amount settlement is computed from:
// the approved final cost when one exists, the original quote otherwise.
func (j RepairJob) SettlementGrossCents() int64 {
	if j.FinalCostCents != nil {
		return *j.FinalCostCents
	}
	return j.QuotedCostCents
}
