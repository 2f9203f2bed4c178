package models

import (
	"time"

	"github.com/google/uuid"
)

// BankAccount is the whitelisted payout destination of a repair center.
// At most one row per center is active (enforced by a partial unique
// index), and the row is locked against edits for a configured window
// after every update.
type BankAccount struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RepairCenterID    uuid.UUID `gorm:"column:repair_center_id;type:uuid;not null;index"`
	BankName          string    `gorm:"column:bank_name;not null"`
	AccountNumber     string    `gorm:"column:account_number;not null"`
	AccountHolderName string    `gorm:"column:account_holder_name;not null"`
	Active            bool      `gorm:"column:active;not null;default:true"`
	WhitelistedAt     time.Time `gorm:"column:whitelisted_at;not null"`
	LastUpdatedAt     time.Time `gorm:"column:last_updated_at;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
