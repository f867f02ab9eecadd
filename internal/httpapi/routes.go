package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pongmatch/backend/internal/ws"
)

func SetupRoutes(api *API, gate *ws.Gate) http.Handler {
	r := chi.NewRouter()

	r.Post("/matches", api.CreateMatch)
	r.Post("/matches/{id}/join", api.JoinMatch)
	r.Get("/ws", gate.Handler())
	r.Get("/healthz", Healthz)
	return r
}
