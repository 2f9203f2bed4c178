package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/enums"
)

// Payment is one payment transaction for a job's repair cost. A job has at
// most one active completed payment.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID                 uuid.UUID           `gorm:"column:job_id;type:uuid;not null;index"`
	Provider              string              `gorm:"column:provider;not null"`
	ProviderSessionID     *string             `gorm:"column:provider_session_id;uniqueIndex:idx_payment_provider_session"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id"`
	Status                enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	Currency              enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
