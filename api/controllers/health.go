package controllers

import (
	"context"
	"net/http"

	"github.com/dcastano/repairhub-backend/api/responses"
	"github.com/dcastano/repairhub-backend/pkg/config"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RepairHub-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the backing stores are reachable.
func HealthReady(cfg *config.Config, dbPing, redisPing pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RepairHub-Env", cfg.App.Env)
		if dbPing != nil {
			if err := dbPing.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if redisPing != nil {
			if err := redisPing.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
