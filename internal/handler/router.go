package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	APIToken       string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(h *HTTPHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(Recovery)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Use(BearerAuth(cfg.APIToken))
		r.Use(RequireUser)

		r.Post("/reviews", h.ProcessReview)

		r.Route("/decks/{deckID}", func(r chi.Router) {
			r.Get("/due", h.DueCards)
			r.Post("/optimize", h.TriggerOptimization)
			r.Get("/optimization", h.OptimizationStatus)
			r.Get("/params", h.GetParams)
			r.Put("/params", h.UpdateParams)
		})

		r.Route("/cards/{cardID}", func(r chi.Router) {
			r.Get("/state", h.CardState)
			r.Delete("/", h.DeleteCard)
		})
	})

	return r
}
