// Package httpserver exposes the worker's operational surface: liveness and
// Prometheus metrics. Nothing user-facing runs here.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the ops HTTP server with sane defaults.
func New(addr string, healthz http.HandlerFunc) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", healthz)
	router.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
