package main

import (
	"net/http"

	"pricing-service/internal/handlers"
	"pricing-service/internal/identity"
	"pricing-service/internal/middleware"
	"pricing-service/internal/provision"
	"pricing-service/internal/session"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(
	authHandler *handlers.AuthHandler,
	roleHandler *handlers.RoleHandler,
	parser *identity.Parser,
	provisioner *provision.Provisioner,
	sessions *session.Service,
	logger *zap.Logger,
) *mux.Router {
	router := mux.NewRouter()

	// Add CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+identity.AssertionHeader)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Add logging middleware
	router.Use(middleware.LoggingMiddleware(logger))

	// Backoffice: credential login plus session-token guard. Throttled per
	// source address on top of the per-identifier failure window.
	backoffice := router.PathPrefix("/backoffice/v1.0").Subrouter()
	backoffice.Use(middleware.ThrottleMiddleware(10, 20))
	backoffice.HandleFunc("/login", authHandler.HandleLogin).Methods("POST", "OPTIONS")
	backoffice.HandleFunc("/refresh", authHandler.HandleRefresh).Methods("POST", "OPTIONS")
	backoffice.HandleFunc("/logout", authHandler.HandleLogout).Methods("POST", "OPTIONS")

	backofficeSession := backoffice.NewRoute().Subrouter()
	backofficeSession.Use(middleware.RequireBackofficeSession(sessions, logger))
	backofficeSession.HandleFunc("/session", authHandler.HandleSession).Methods("GET", "OPTIONS")

	// Main application: upstream identity assertion guard.
	api := router.PathPrefix("/api/v1.0").Subrouter()
	api.Use(middleware.RequireIdentity(parser, provisioner, logger))
	api.HandleFunc("/me", handlers.HandleMe).Methods("GET", "OPTIONS")

	// Role administration additionally requires the Executive role.
	roleAdmin := api.NewRoute().Subrouter()
	roleAdmin.Use(middleware.RequireExecutive)
	roleAdmin.HandleFunc("/roles", roleHandler.HandleList).Methods("GET", "OPTIONS")
	roleAdmin.HandleFunc("/roles", roleHandler.HandleAssign).Methods("POST", "OPTIONS")
	roleAdmin.HandleFunc("/roles/{email}", roleHandler.HandleRemove).Methods("DELETE", "OPTIONS")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	return router
}
