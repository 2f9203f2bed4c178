package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/api/validators"
	"github.com/dcastano/repairhub-backend/internal/jobs"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

// CreateJob opens a repair job for the authenticated customer.
func CreateJob(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input jobs.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.CustomerID = act.UserID

		job, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, job)
	}
}

// GetJob returns one job visible to the actor.
func GetJob(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		job, err := svc.Get(r.Context(), jobs.GetInput{
			JobID:         jobID,
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, job)
	}
}

// ListJobs returns the jobs visible to the actor, newest first.
func ListJobs(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := jobs.ListInput{
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
			Cursor:        strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			input.Limit = value
		}
		if statusStr := strings.TrimSpace(r.URL.Query().Get("status")); statusStr != "" {
			status, err := enums.ParseJobStatus(statusStr)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			input.Status = status
		}

		result, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AcceptQuote records the customer accepting the quoted cost.
func AcceptQuote(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		if err := svc.AcceptQuote(r.Context(), jobs.AcceptQuoteInput{
			JobID:       jobID,
			ActorUserID: act.UserID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// CancelJob cancels a job that has not reached pickup yet.
func CancelJob(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		if err := svc.Cancel(r.Context(), jobs.CancelInput{
			JobID:       jobID,
			ActorUserID: act.UserID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type proposeAdjustmentRequest struct {
	FinalCostCents int64  `json:"final_cost_cents" validate:"required,gt=0"`
	Reason         string `json:"reason" validate:"required"`
}

// ProposeAdjustment lets center staff request a new final cost.
func ProposeAdjustment(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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
		jobID, err := pathID(r, "jobID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body proposeAdjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.ProposeAdjustment(r.Context(), jobs.ProposeAdjustmentInput{
			JobID:          jobID,
			ActorUserID:    act.UserID,
			ActorCenterID:  centerID,
			FinalCostCents: body.FinalCostCents,
			Reason:         body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

type resolveAdjustmentRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// ResolveAdjustment records the customer's approve/decline decision.
func ResolveAdjustment(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body resolveAdjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ResolveAdjustment(r.Context(), jobs.ResolveAdjustmentInput{
			JobID:       jobID,
			ActorUserID: act.UserID,
			Approve:     *body.Approve,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// MarkRepairCompleted records the center finishing the repair work.
func MarkRepairCompleted(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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
		jobID, err := pathID(r, "jobID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkRepairCompleted(r.Context(), jobs.MarkRepairCompletedInput{
			JobID:         jobID,
			ActorUserID:   act.UserID,
			ActorCenterID: centerID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// ConfirmDeviceReturned records the customer's first completion confirmation.
func ConfirmDeviceReturned(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.ConfirmDeviceReturned(r.Context(), jobs.ConfirmDeviceReturnedInput{
			JobID:       jobID,
			ActorUserID: act.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type confirmSatisfactionRequest struct {
	Rating   int     `json:"rating" validate:"required,min=1,max=5"`
	Feedback *string `json:"feedback"`
}

// ConfirmSatisfaction records the customer's second completion confirmation.
func ConfirmSatisfaction(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body confirmSatisfactionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmSatisfaction(r.Context(), jobs.ConfirmSatisfactionInput{
			JobID:       jobID,
			ActorUserID: act.UserID,
			Rating:      body.Rating,
			Feedback:    body.Feedback,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
