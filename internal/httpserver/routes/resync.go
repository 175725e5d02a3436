package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/shelf-sh/shelf/internal/httpserver/deps"
	"github.com/shelf-sh/shelf/internal/httpserver/handlers"
)

func init() { Register(registerResync) }

func registerResync(r chi.Router, d deps.Deps) {
	r.Post("/api/resync", handlers.Resync(d))
}
