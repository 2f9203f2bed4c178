package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/pkg/enums"
)

// Notification is a read-model row fanned out to admin or center staff.
type Notification struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RepairCenterID *uuid.UUID             `gorm:"column:repair_center_id;type:uuid;index"`
	Audience       string                 `gorm:"column:audience;not null"`
	Type           enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title          string                 `gorm:"column:title;not null"`
	Payload        json.RawMessage        `gorm:"column:payload;type:jsonb"`
	ReadAt         *time.Time             `gorm:"column:read_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}
