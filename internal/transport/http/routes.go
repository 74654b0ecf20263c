package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

func Routes(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.EnqueueJob)
		r.Get("/{id}", h.GetJob)
		r.Get("/{id}/events", h.GetJobEvents)
	})

	r.Post("/webhooks/payment", h.PaymentWebhook)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", h.QueueStats)
		r.Get("/dead-letter", h.DeadLetterList)
		r.Post("/dead-letter/{id}/retry", h.DeadLetterRetry)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
