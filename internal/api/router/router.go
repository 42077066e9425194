package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mediconnect/mediconnect-ai/internal/appointments"
	"github.com/mediconnect/mediconnect-ai/internal/webchat"
	"github.com/mediconnect/mediconnect-ai/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	WebChatHandler *webchat.Handler
	Appointments   appointments.Repository
	MetricsHandler http.Handler
	AppName        string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", healthCheck(cfg.AppName))

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WebChatHandler != nil {
		r.Route("/chat", func(chat chi.Router) {
			chat.Get("/ws", cfg.WebChatHandler.HandleWebSocket)
			chat.Get("/history", cfg.WebChatHandler.HandleHistory)
		})
	}

	if cfg.Appointments != nil {
		r.Get("/appointments", listAppointments(cfg.Appointments, cfg.Logger))
	}

	return r
}

func healthCheck(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"service": appName,
		})
	}
}

func listAppointments(repo appointments.Repository, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := repo.List(r.Context())
		if err != nil {
			if logger != nil {
				logger.Error("failed to list appointments", "error", err)
			}
			http.Error(w, "failed to list appointments", http.StatusInternalServerError)
			return
		}
		if appts == nil {
			appts = []appointments.Appointment{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"appointments": appts})
	}
}
