package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewRouter builds the service handler. requestTimeout bounds a whole
// request including the chunk loop, so it should comfortably exceed the
// expected duration of the largest upload.
func NewRouter(logger *slog.Logger, h *Handler, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Post("/upload_video", h.UploadVideo)
	r.Post("/exchange_token", h.ExchangeToken)
	r.Get("/archives", h.ListArchives)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "Service is running"})
	})

	return r
}
