package controllers

import (
	"net/http"
	"time"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/api/validators"
	"github.com/dcastano/repairhub-backend/internal/deliveries"
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/types"
)

type scheduleDeliveryRequest struct {
	Type            string        `json:"type" validate:"required"`
	Provider        string        `json:"provider" validate:"required"`
	CustomerAddress types.Address `json:"customer_address" validate:"required"`
	CustomerContact types.Contact `json:"customer_contact"`
	ScheduledPickup *time.Time    `json:"scheduled_pickup"`
}

// ScheduleDelivery books a pickup or return courier leg for a job.
func ScheduleDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body scheduleDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		legType, err := enums.ParseDeliveryType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery type"))
			return
		}
		provider, err := enums.ParseCourierProvider(body.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid courier provider"))
			return
		}

		delivery, err := svc.Schedule(r.Context(), deliveries.ScheduleInput{
			JobID:           jobID,
			Type:            legType,
			Provider:        provider,
			ActorUserID:     act.UserID,
			ActorCenterID:   act.CenterID,
			CustomerAddress: body.CustomerAddress,
			CustomerContact: body.CustomerContact,
			ScheduledPickup: body.ScheduledPickup,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, delivery)
	}
}

// CancelDelivery cancels a leg that has not reached pickup.
func CancelDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryID, err := pathID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), deliveries.CancelInput{
			DeliveryID:    deliveryID,
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// GetDelivery returns one leg visible to the actor.
func GetDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryID, err := pathID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Get(r.Context(), deliveries.GetInput{
			DeliveryID:    deliveryID,
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

// ListJobDeliveries lists both legs of a job.
func ListJobDeliveries(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
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

		legs, err := svc.ListByJob(r.Context(), deliveries.ListByJobInput{
			JobID:         jobID,
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, legs)
	}
}

// TrackDelivery returns the status history trail of a leg.
func TrackDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryID, err := pathID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.Track(r.Context(), deliveries.GetInput{
			DeliveryID:    deliveryID,
			ActorUserID:   act.UserID,
			ActorCenterID: act.CenterID,
			ActorRole:     act.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
