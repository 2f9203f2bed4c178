package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/enums"
)

// DeliveryStatusHistory is the append-only audit trail of a delivery leg.
// Rows are never updated in place; every accepted webhook appends one,
// whether or not the projected status changed.
type DeliveryStatusHistory struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DeliveryID uuid.UUID            `gorm:"column:delivery_id;type:uuid;not null;index"`
	Status     enums.DeliveryStatus `gorm:"column:status;type:text;not null"`
	RawStatus  string               `gorm:"column:raw_status;not null"`
	Location   *string              `gorm:"column:location"`
	Note       *string              `gorm:"column:note"`
	RecordedAt time.Time            `gorm:"column:recorded_at;autoCreateTime"`
}
