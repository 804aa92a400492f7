package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joaquinvilla/merkado-backend/api/responses"
	"github.com/joaquinvilla/merkado-backend/pkg/config"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

const envHeader = "X-Merkado-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. Nil pingers are skipped so each
// binary can hand in only the dependencies it actually uses.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis, pubsub pinger) http.HandlerFunc {
	checks := []struct {
		name string
		ping pinger
	}{
		{"database", db},
		{"redis", redis},
		{"pubsub", pubsub},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		for _, check := range checks {
			if check.ping == nil {
				continue
			}
			if err := check.ping.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s not ready", check.name)))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
