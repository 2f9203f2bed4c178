package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dcastano/repairhub-backend/pkg/db/models"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/google/uuid"
)

// Audience values for notification rows.
const (
	AudienceCenter = "repair_center"
	AudienceAdmin  = "admin"
)

// Event is a domain occurrence worth surfacing to center staff or admins.
type Event struct {
	Type           enums.NotificationType
	JobID          uuid.UUID
	RepairCenterID *uuid.UUID
	Title          string
	Extra          map[string]any
}

// Dispatcher fans domain events out into the notification read model.
// Dispatch never returns an error: notification writes are best-effort
// and must not roll back the business operation that triggered them.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

type dispatcher struct {
	repo Repository
	logg *logger.Logger
}

// NewDispatcher builds the best-effort notification dispatcher.
func NewDispatcher(repo Repository, logg *logger.Logger) (Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &dispatcher{repo: repo, logg: logg}, nil
}

func (d *dispatcher) Dispatch(ctx context.Context, event Event) {
	payload := map[string]any{"job_id": event.JobID.String()}
	for k, v := range event.Extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		d.logg.Error(ctx, "encode notification payload", err)
		return
	}

	audience := AudienceAdmin
	if event.RepairCenterID != nil && *event.RepairCenterID != uuid.Nil {
		audience = AudienceCenter
	}

	notification := &models.Notification{
		RepairCenterID: event.RepairCenterID,
		Audience:       audience,
		Type:           event.Type,
		Title:          event.Title,
		Payload:        raw,
	}
	if err := d.repo.Create(ctx, notification); err != nil {
		logCtx := d.logg.WithJobID(ctx, event.JobID.String())
		d.logg.Error(logCtx, "notification write failed", err)
	}
}
