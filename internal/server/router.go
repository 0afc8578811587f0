package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies collects handler dependencies.
type RouterDependencies struct {
	Health           HealthService
	API              *APIHandlers
	AllowedOrigins   []string
	AllowCredentials bool
}

// NewRouter wires the HTTP routes exposed by the API.
func NewRouter(logger *slog.Logger, deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	if len(deps.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(deps.AllowedOrigins, deps.AllowCredentials))
	}
	r.Use(recoverMiddleware(logger))
	r.Use(tracingMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		payload := map[string]any{
			"status": "ok",
		}

		if deps.Health != nil {
			if err := deps.Health.Check(ctx); err != nil {
				logger.Error("health check failed", "error", err)
				status = http.StatusServiceUnavailable
				payload["status"] = "degraded"
				payload["error"] = err.Error()
			}
		}

		respondJSON(w, status, payload)
	})

	if api := deps.API; api != nil {
		r.Route("/parties", func(r chi.Router) {
			r.Post("/", api.createParty)
			r.Get("/", api.listParties)
			r.Get("/{id}", api.getParty)
			r.Get("/{id}/relationships", api.partyRelationships)
			r.Get("/{id}/business-relationships", api.businessRelationships)
		})
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", api.createTransaction)
			r.Get("/", api.listTransactions)
			r.Get("/{id}", api.getTransaction)
			r.Get("/{id}/relationships", api.transactionRelationships)
		})
		r.Post("/business-relationships", api.createBusinessRelationship)
		r.Route("/inference/runs", func(r chi.Router) {
			r.Post("/", api.runInference)
			r.Get("/", api.listInferenceRuns)
			r.Get("/{id}", api.getInferenceRun)
		})
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/shortest-path", api.shortestPath)
			r.Get("/transaction-clusters", api.transactionClusters)
			r.Get("/graph-metrics", api.graphMetrics)
		})
		r.Get("/graph", api.graph)
	}

	return r
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
