package main

import (
	"encoding/json"
	"net/http"

	"github.com/HanTheDev/chem-render-api/internal/admin"
	"github.com/HanTheDev/chem-render-api/internal/audit"
	"github.com/HanTheDev/chem-render-api/internal/auth"
	"github.com/HanTheDev/chem-render-api/internal/chemical"
	"github.com/HanTheDev/chem-render-api/internal/config"
	"github.com/HanTheDev/chem-render-api/internal/db"
	"github.com/HanTheDev/chem-render-api/internal/middleware"
	"github.com/HanTheDev/chem-render-api/internal/ratelimit"
	"github.com/HanTheDev/chem-render-api/internal/render"
	"github.com/HanTheDev/chem-render-api/internal/web"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

type dependencies struct {
	store   db.Store
	toolkit render.Toolkit
	// nil selects the in-process limiter.
	limiter *ratelimit.RateLimiter
}

func newRouter(cfg *config.Config, deps dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.AccessLog, middleware.Recover)

	// Public routes
	router.HandleFunc("/", web.IndexHandler(chemical.Route)).Methods("GET")
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	auth.NewHandler(deps.store, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL).RegisterRoutes(router)

	// Render endpoint: optional auth first so the throttle can tell users apart.
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)
	throttle := ratelimit.AnonThrottle(deps.limiter, cfg.AnonRatePerHour)
	chemHandler := chemical.NewHandler(render.NewRenderer(deps.toolkit), audit.NewLogger(deps.store))
	chemHandler.RegisterRoutes(router, func(next http.Handler) http.Handler {
		return authMiddleware.Optional(throttle(next))
	})

	admin.NewAdminHandler(deps.store, cfg.AdminAPIKey).RegisterRoutes(router)

	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}
