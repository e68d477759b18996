package http

import (
	"net/http"
	"time"

	"mcq-exam-service/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the REST API, the leaderboard websocket and the health check.
func NewRouter(service *app.ExamService) http.Handler {
	h := NewHandler(service)
	ws := NewWSHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws/exams/{examID}/leaderboard", ws.ServeWS)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(30 * time.Second))
		api.Post("/start", h.Start)
		api.Route("/session/{token}", func(sr chi.Router) {
			sr.Get("/question", h.NextQuestion)
			sr.Post("/answer", h.SubmitAnswer)
			sr.Post("/finish", h.Finish)
			sr.Get("/rules", h.Rules)
		})
		api.Get("/exams/active", h.ActiveExam)
		api.Get("/exams/{examID}/leaderboard", h.Leaderboard)
		api.Route("/admin/exams/{examID}", func(ar chi.Router) {
			ar.Post("/recalculate", h.Recalculate)
			ar.Post("/activate", h.Activate)
		})
	})
	return r
}
