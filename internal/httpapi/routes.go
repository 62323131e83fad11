package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsalverda/tourney-draft-backend/internal/ws"
)

func SetupRoutes(api *API) http.Handler {
	r := chi.NewRouter()

	r.Post("/matches/{matchID}/draft", api.CreateDraft)
	r.Post("/matches/{matchID}/result", api.RecordResult)
	r.Get("/draft/{matchID}", api.GetSession)
	r.Post("/draft/{matchID}/actions", api.SubmitAction)
	r.Post("/draft/{matchID}/abort", api.AbortSession)
	r.Post("/tournaments/{tournamentID}/resolve-byes", api.ResolveByes)
	r.Get("/ws", ws.Handler(api.Registry, api.Issuer, api.Logger))
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
