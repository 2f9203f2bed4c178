package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcastano/repairhub-backend/api/responses"
	courierwebhook "github.com/dcastano/repairhub-backend/internal/webhooks/courier"
	"github.com/dcastano/repairhub-backend/pkg/config"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

type CourierWebhookService interface {
	Process(ctx context.Context, event courierwebhook.Event) error
}

// wheelyPayload is the callback body wheely posts per order event.
type wheelyPayload struct {
	EventID       string  `json:"event_id"`
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	OccurredAt    *string `json:"occurred_at"`
	Location      *string `json:"location"`
	Note          *string `json:"note"`
	CashCollected bool    `json:"cash_collected"`
}

// shipraPayload is the callback body shipra posts per shipment event.
type shipraPayload struct {
	ID         string  `json:"id"`
	ShipmentID string  `json:"shipment_id"`
	Status     string  `json:"status"`
	Timestamp  *string `json:"timestamp"`
	City       *string `json:"city"`
	Remarks    *string `json:"remarks"`
	CodAmount  int64   `json:"cod_amount_cents"`
}

// CourierWebhook verifies and dispatches courier status callbacks. The
// provider comes from the URL; each provider signs with its own secret.
func CourierWebhook(svc CourierWebhookService, cfg config.CouriersConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		provider, err := enums.ParseCourierProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown courier"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		secret, sigHeader := courierSignature(provider, cfg, r)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature missing"))
			return
		}
		if !validateSignature(payload, secret, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := decodeCourierEvent(provider, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Process(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("%s event %s processed", provider, event.EventID))
		}
		responses.WriteSuccess(w, nil)
	}
}

func courierSignature(provider enums.CourierProvider, cfg config.CouriersConfig, r *http.Request) (secret, header string) {
	switch provider {
	case enums.CourierProviderWheely:
		return cfg.Wheely.WebhookSecret, r.Header.Get("X-Wheely-Signature")
	case enums.CourierProviderShipra:
		return cfg.Shipra.WebhookSecret, r.Header.Get("X-Shipra-Signature")
	}
	return "", ""
}

func decodeCourierEvent(provider enums.CourierProvider, payload []byte) (courierwebhook.Event, error) {
	switch provider {
	case enums.CourierProviderWheely:
		var body wheelyPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return courierwebhook.Event{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode event")
		}
		return courierwebhook.Event{
			Provider:        provider,
			EventID:         body.EventID,
			ProviderOrderID: body.OrderID,
			RawStatus:       body.Status,
			OccurredAt:      parseEventTime(body.OccurredAt),
			Location:        body.Location,
			Note:            body.Note,
			CashCollected:   body.CashCollected,
		}, nil
	case enums.CourierProviderShipra:
		var body shipraPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return courierwebhook.Event{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode event")
		}
		return courierwebhook.Event{
			Provider:        provider,
			EventID:         body.ID,
			ProviderOrderID: body.ShipmentID,
			RawStatus:       body.Status,
			OccurredAt:      parseEventTime(body.Timestamp),
			Location:        body.City,
			Note:            body.Remarks,
			CashCollected:   body.CodAmount > 0,
		}, nil
	}
	return courierwebhook.Event{}, pkgerrors.New(pkgerrors.CodeNotFound, "unknown courier")
}

func parseEventTime(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}
	return &parsed
}

func validateSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
