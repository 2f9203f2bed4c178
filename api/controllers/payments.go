package controllers

import (
	"net/http"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/api/validators"
	"github.com/dcastano/repairhub-backend/internal/payments"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

// RecordCheckout registers a provider checkout session for a job.
func RecordCheckout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		jobID, err := pathID(r, "jobID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input payments.RecordCheckoutInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.JobID = jobID
		input.ActorUserID = act.UserID

		payment, err := svc.RecordCheckout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

// ListJobPayments lists the payment attempts of one job.
func ListJobPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		jobID, err := pathID(r, "jobID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListForJob(r.Context(), payments.ListForJobInput{
			JobID:         jobID,
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
