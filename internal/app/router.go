// Package app assembles the admin router and runs the engine's background
// loops.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	httpserver "github.com/fairyhunter13/chronoq/internal/adapter/httpserver"
	"github.com/fairyhunter13/chronoq/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the admin HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPRequestTimeout()))
	r.Use(httpserver.AccessLog())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.HTTPCORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit mutating endpoints
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.HTTPRateLimitPerMin, 1*time.Minute))
		wr.Post("/jobs", srv.CreateJobHandler())
		wr.Delete("/jobs/{id}", srv.DeleteJobHandler())
		wr.Patch("/jobs/{id}/time", srv.UpdateJobTimeHandler())
	})

	r.Get("/health", srv.HealthHandler())

	return httpserver.SecurityHeaders(r)
}
