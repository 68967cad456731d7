// Package server assembles the HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faciam-dev/gpdb/internal/api/handler"
	"github.com/faciam-dev/gpdb/internal/auth"
	"github.com/faciam-dev/gpdb/internal/server/middleware"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// JWTSecret enables bearer token identities. Without it every caller
	// is anonymous.
	JWTSecret string
}

// New returns the API and its HTTP handler.
func New(env *handler.Env, opt Options) (huma.API, http.Handler) {
	r := chi.NewRouter()
	origins := opt.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	api := humachi.New(r, huma.DefaultConfig("Participants Database API", "1.0.0"))
	api.UseMiddleware(middleware.MetricsMW)
	var jwtHandler *auth.JWT
	if opt.JWTSecret != "" {
		jwtHandler = auth.NewJWT(opt.JWTSecret, 15*time.Minute)
	}
	api.UseMiddleware(auth.Middleware(api, jwtHandler))

	handler.RegisterLists(api, &handler.ListHandler{Env: env})
	handler.RegisterRecords(api, &handler.RecordHandler{Env: env})
	handler.RegisterSignup(api, &handler.SignupHandler{Env: env})
	handler.RegisterFields(api, &handler.FieldHandler{Env: env})
	return api, r
}
