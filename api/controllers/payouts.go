package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/api/validators"
	"github.com/dcastano/repairhub-backend/internal/settlement"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

// ListPayouts returns the center's settlement records, newest first.
func ListPayouts(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		centerID, err := act.requireCenter()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := settlement.ListParams{
			CenterID: centerID,
			Cursor:   strings.TrimSpace(r.URL.Query().Get("cursor")),
			Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		}
		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = value
		}

		result, err := svc.ListByCenter(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type processBatchRequest struct {
	PayoutIDs []uuid.UUID `json:"payout_ids" validate:"required,min=1"`
	BatchRef  string      `json:"batch_ref"`
}

// ProcessPayoutBatch settles the listed payouts; failures are reported
// per item and never abort the batch.
func ProcessPayoutBatch(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body processBatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProcessBatch(r.Context(), settlement.ProcessBatchInput{
			PayoutIDs: body.PayoutIDs,
			BatchRef:  body.BatchRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
