package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/types"
)

// RepairCenter is the business side of the marketplace. BusinessName is the
// registered name bank account holders must match.
type RepairCenter struct {
	ID           uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessName string        `gorm:"column:business_name;not null"`
	Email        string        `gorm:"column:email;not null"`
	Phone        *string       `gorm:"column:phone"`
	Address      types.Address `gorm:"column:address;type:jsonb;serializer:json"`
	ContactName  string        `gorm:"column:contact_name;not null"`
	CreatedAt    time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
