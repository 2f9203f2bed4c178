package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dcastano/repairhub-backend/api/middleware"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
)

// actor carries the authenticated identity of a request.
type actor struct {
	UserID   uuid.UUID
	CenterID *uuid.UUID
	Role     string
}

func actorFromRequest(r *http.Request) (actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	act := actor{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
	if rawCenter := middleware.CenterIDFromContext(r.Context()); rawCenter != "" {
		centerID, err := uuid.Parse(rawCenter)
		if err != nil {
			return actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid center id")
		}
		act.CenterID = &centerID
	}
	return act, nil
}

func (a actor) requireCenter() (uuid.UUID, error) {
	if a.CenterID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "repair center context missing")
	}
	return *a.CenterID, nil
}

func pathID(r *http.Request, param string) (uuid.UUID, error) {
	value := chi.URLParam(r, param)
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
