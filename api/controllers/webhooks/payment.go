package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dcastano/repairhub-backend/api/responses"
	paymentwebhook "github.com/dcastano/repairhub-backend/internal/webhooks/payment"
	"github.com/dcastano/repairhub-backend/pkg/config"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

type PaymentWebhookService interface {
	Process(ctx context.Context, event paymentwebhook.Event) error
}

type paymentPayload struct {
	EventID    string  `json:"event_id"`
	Type       string  `json:"type"`
	OccurredAt *string `json:"occurred_at"`
	Data       struct {
		SessionID     string `json:"session_id"`
		TransactionID string `json:"transaction_id"`
	} `json:"data"`
}

// PaymentWebhook verifies and dispatches payment provider callbacks.
func PaymentWebhook(svc PaymentWebhookService, cfg config.PaymentConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("X-Payment-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature missing"))
			return
		}
		if !validateSignature(payload, cfg.WebhookSecret, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var body paymentPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode event"))
			return
		}

		event := paymentwebhook.Event{
			EventID:       body.EventID,
			Type:          body.Type,
			SessionID:     body.Data.SessionID,
			TransactionID: body.Data.TransactionID,
			OccurredAt:    parseEventTime(body.OccurredAt),
		}

		if err := svc.Process(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment event %s processed", event.EventID))
		}
		responses.WriteSuccess(w, nil)
	}
}
