package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", app.SourcesHandler)
		r.Get("/import/running", app.RunningHandler)

		r.Route("/import/{source}", func(r chi.Router) {
			r.Get("/scan", app.ScanHandler)
			r.Post("/start", app.StartImportHandler)
			r.Post("/pause", app.PauseImportHandler)
			r.Post("/cancel", app.CancelImportHandler)
			r.Get("/state", app.StateHandler)
			r.Get("/events", app.EventsHandler)
		})
	})

	return r
}
