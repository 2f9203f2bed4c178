package controllers

import (
	"net/http"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/api/validators"
	"github.com/dcastano/repairhub-backend/internal/centers"
	"github.com/dcastano/repairhub-backend/pkg/logger"
	"github.com/dcastano/repairhub-backend/pkg/types"
)

// RegisterCenter creates a repair center profile.
func RegisterCenter(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input centers.RegisterInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		center, err := svc.Register(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, center)
	}
}

// GetCenter returns one repair center profile.
func GetCenter(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, err := pathID(r, "centerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		center, err := svc.Get(r.Context(), centerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, center)
	}
}

type updateCenterRequest struct {
	Phone       *string        `json:"phone"`
	Address     *types.Address `json:"address"`
	ContactName *string        `json:"contact_name"`
}

// UpdateCenter patches the actor's own center profile.
func UpdateCenter(svc centers.Service, logg *logger.Logger) http.HandlerFunc {
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

		var body updateCenterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.UpdateProfile(r.Context(), centers.UpdateProfileInput{
			CenterID:    centerID,
			Phone:       body.Phone,
			Address:     body.Address,
			ContactName: body.ContactName,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
