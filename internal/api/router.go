package api

import (
	"fleet-route-engine/internal/api/handlers"
	"fleet-route-engine/internal/ports"
	"fleet-route-engine/internal/services"
	"net/http"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(store ports.Store, engine *services.Engine) http.Handler {
	mux := http.NewServeMux()

	routeHandler := &handlers.RouteHandler{Store: store, Engine: engine}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/routes/merge", routeHandler.Merge)
	mux.HandleFunc("/routes/{id}", routeHandler.Get)
	mux.HandleFunc("/routes/{id}/optimize", routeHandler.Optimize)
	mux.HandleFunc("/routes/{id}/split", routeHandler.Split)

	return requestIDMiddleware(loggingMiddleware(mux))
}
