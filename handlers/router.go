package handlers

import (
	"errors"
	"net/http"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"pushupChallengeAPI/internal/config"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/store"
	"pushupChallengeAPI/middleware"
	"pushupChallengeAPI/services"
)

type RouterDeps struct {
	Config     *config.Config
	Challenges *services.ChallengeService
	Users      *services.UserService
	Limiter    *middleware.RateLimiter
	Metrics    http.Handler
	Pprof      http.Handler
	Log        logger.Logger
}

// NewRouter wires every route and wraps the result in CORS.
func NewRouter(d RouterDeps) http.Handler {
	challengeHandler := NewChallengeHandler(d.Challenges, d.Log)
	userHandler := NewUserHandler(d.Users, d.Log)
	adminHandler := NewAdminHandler(d.Users, d.Log)

	chain := []mux.MiddlewareFunc{middleware.RequestID, middleware.Recover(d.Log)}
	if d.Limiter != nil {
		chain = append(chain, d.Limiter.Middleware)
	}
	chain = append(chain, middleware.MonitorMiddleware)

	// mux skips Use middleware when nothing matches, so the fallback
	// handlers get the same chain wrapped by hand.
	r := mux.NewRouter()
	r.Use(chain...)
	r.NotFoundHandler = wrap(http.HandlerFunc(notFound), chain)
	r.MethodNotAllowedHandler = wrap(http.HandlerFunc(methodNotAllowed), chain)

	if d.Metrics != nil {
		r.Handle("/metrics", middleware.BasicAuth("Metrics", d.Config.Metrics.User, d.Config.Metrics.Pass)(d.Metrics)).Methods("GET")
	}
	if d.Pprof != nil {
		r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(d.Config.Metrics.PprofSecret)(d.Pprof))
	}
	r.HandleFunc("/health", challengeHandler.Health).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/data", challengeHandler.GetData).Methods("GET")
	api.HandleFunc("/challenge", challengeHandler.GetChallenge).Methods("GET")
	api.HandleFunc("/user", userHandler.Login).Methods("POST")

	protected := api.PathPrefix("/user").Subrouter()
	protected.Use(middleware.UserAuth(d.Users, isUnauthorized, d.Log))
	protected.HandleFunc("", userHandler.GetUser).Methods("GET")
	protected.HandleFunc("/log", userHandler.LogPushups).Methods("POST")
	protected.HandleFunc("/break", userHandler.UseBreakDay).Methods("POST")
	protected.HandleFunc("/stats", userHandler.GetUserStats).Methods("GET")
	protected.HandleFunc("/calendar", userHandler.GetCalendar).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.BasicAuth("Admin", d.Config.Admin.User, d.Config.Admin.Pass))
	admin.HandleFunc("/challenge", challengeHandler.Configure).Methods("POST")
	admin.HandleFunc("/users/{initials}/reset", adminHandler.ResetUser).Methods("POST")
	admin.HandleFunc("/users/{initials}", adminHandler.DeleteUser).Methods("DELETE")
	admin.HandleFunc("/users/{initials}/pin", adminHandler.UpdatePin).Methods("PUT")
	admin.HandleFunc("/users/{initials}/progress", adminHandler.CorrectProgress).Methods("PUT")

	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(d.Config.Server.AllowedOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.HeaderInitials, middleware.HeaderPin, middleware.HeaderRequestID}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length", middleware.HeaderRequestID}),
	)
	return cors(r)
}

func wrap(h http.Handler, chain []mux.MiddlewareFunc) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func isUnauthorized(err error) bool {
	return errors.Is(err, services.ErrInvalidPin) || errors.Is(err, store.ErrUserNotFound)
}
