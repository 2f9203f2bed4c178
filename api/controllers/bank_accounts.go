package controllers

import (
	"net/http"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/api/validators"
	"github.com/dcastano/repairhub-backend/internal/bankaccounts"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

// SubmitBankAccount registers or replaces the center's payout account.
func SubmitBankAccount(svc bankaccounts.Service, logg *logger.Logger) http.HandlerFunc {
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

		var input bankaccounts.SubmitInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.CenterID = centerID

		account, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, account)
	}
}

// GetBankAccount returns the active payout account and its lock window.
func GetBankAccount(svc bankaccounts.Service, logg *logger.Logger) http.HandlerFunc {
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

		view, err := svc.GetActive(r.Context(), centerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
