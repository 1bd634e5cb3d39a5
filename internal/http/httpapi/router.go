package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App, allowedOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestLogger(app.Logger))
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", app.JobsCreate)
		r.Get("/{job_id}", app.JobStatus)
		r.Post("/{job_id}/cancel", app.JobCancel)
	})

	r.Route("/usage", func(r chi.Router) {
		r.Post("/record-iteration", app.RecordIteration)
		r.Get("/{user_id}", app.UsageSummary)
	})

	r.Post("/packs", app.PacksPurchase)

	r.Route("/auth/handoff", func(r chi.Router) {
		r.Post("/", app.HandoffPut)
		r.Get("/{state}", app.HandoffConsume)
	})

	return r
}
