package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/session"
)

// NewRouter builds the local API the presentation layer talks to.
func NewRouter(sess *session.Session, corsOrigins []string) http.Handler {
	conversationHandler := NewConversationHandler(sess)
	messageHandler := NewMessageHandler(sess)
	statusHandler := NewStatusHandler(sess)

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusHandler.Status)
		r.Post("/connection/reconnect", statusHandler.Reconnect)
		r.Get("/typing", statusHandler.Typing)
		r.Delete("/notices/{id}", statusHandler.DismissNotice)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.ListConversations)
			r.Post("/", conversationHandler.GetOrCreate)
			r.Post("/reload", conversationHandler.Reload)
			r.Post("/{id}/open", conversationHandler.Open)
			r.Post("/{id}/close", conversationHandler.Close)
			r.Get("/{id}/messages", messageHandler.GetMessages)
			r.Post("/{id}/messages", messageHandler.SendMessage)
			r.Post("/{id}/messages/older", messageHandler.LoadOlder)
			r.Post("/{id}/typing", messageHandler.Typing)
		})
	})

	return r
}
