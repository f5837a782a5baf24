package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes mounts the API on router.
func setupRoutes(router chi.Router, h *handlers) {
	router.Route("/api", func(r chi.Router) {
		r.Get("/tree", h.Tree)
		r.Put("/versions/{id}/code", h.SaveCode)
		r.Get("/history", h.History)

		r.Route("/runs/{kind}", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Post("/", h.StartRun)
			r.Post("/stop", h.StopRun)
			r.Post("/rerun", h.Rerun)
			r.Post("/rerun-failed", h.RerunFailed)
			r.Post("/units", h.ReportUnit)
			r.Get("/updates", h.RunUpdates)
		})
	})
}
