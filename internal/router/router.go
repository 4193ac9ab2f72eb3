// Package router assembles the controller's HTTP surfaces: the admission
// router's /radius/event and /signal parity endpoints, the profile admin
// API, the policy-id query surface, and the report scheduler's
// token-protected report endpoints. Each gets the same middleware chain
// order as the teacher's gateway: CORS, RequestID, RealIP, Recoverer,
// Logger, Trace, Timeout.
package router

import (
	"net/http"
	"time"

	"github.com/solidex/shpak/internal/adminapi"
	"github.com/solidex/shpak/internal/admission"
	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/middleware"
	"github.com/solidex/shpak/internal/reconciler"
	"github.com/solidex/shpak/internal/reportweb"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

func baseRouter(logger zerolog.Logger, timeout time.Duration, health *handler.HealthHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Trace-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Trace())
	r.Use(chimiddleware.Timeout(timeout))

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, http.StatusNotFound, "not_found", "the requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "the requested method is not allowed")
	})

	return r
}

// AdmissionDeps holds what the admission/signal HTTP surface needs.
type AdmissionDeps struct {
	Logger            zerolog.Logger
	Timeout           time.Duration
	Health            *handler.HealthHandler
	AdmissionRouter   *admission.Router
	ReconcilerHandler *reconciler.Handler
}

// NewAdmission builds the router for C6/C7's HTTP parity surface: POST
// /radius/event (the extracted-attributes handoff, normally called
// in-process), POST /signal (C5's surface, likewise normally called
// in-process by the admission router and admin API), and POST /keepalive,
// which only logs and acknowledges.
func NewAdmission(deps AdmissionDeps) http.Handler {
	r := baseRouter(deps.Logger, deps.Timeout, deps.Health)
	r.Post("/radius/event", deps.AdmissionRouter.HandleRadiusEvent)
	r.Post("/signal", deps.ReconcilerHandler.ServeSignal)
	r.Post("/keepalive", deps.ReconcilerHandler.ServeKeepalive)
	return r
}

// AdminDeps holds what the profile admin API (C8) and C2's query surface
// need.
type AdminDeps struct {
	Logger     zerolog.Logger
	Timeout    time.Duration
	Health     *handler.HealthHandler
	Profiles   *adminapi.Handler
	Query      *adminapi.QueryHandler
	PolicyLogs *adminapi.PolicyLogHandler
}

// NewAdmin builds the router the GUI consumes: CRUD on /firewall_profiles,
// the debug /radius_check, the update_policy_id write path (the reconciler
// itself persists a new mkey through the repository, not this endpoint),
// the policy-id query surface, and the policy log append endpoint.
func NewAdmin(deps AdminDeps) http.Handler {
	r := baseRouter(deps.Logger, deps.Timeout, deps.Health)

	r.Route("/firewall_profiles", func(r chi.Router) {
		r.Get("/", deps.Profiles.List)
		r.Post("/", deps.Profiles.Create)
		r.Post("/update_policy_id", deps.Profiles.UpdatePolicyID)
		r.Get("/{id}", deps.Profiles.Get)
		r.Put("/{id}", deps.Profiles.Update)
		r.Delete("/{id}", deps.Profiles.Delete)
	})
	r.Get("/radius_check", deps.Profiles.RadiusCheck)

	r.Route("/query/policy_id", func(r chi.Router) {
		r.Post("/by_hash", deps.Query.ByHash)
		r.Put("/check", deps.Query.Check)
		r.Delete("/check", deps.Query.CheckDelete)
	})

	r.Post("/policy_logs", deps.PolicyLogs.Append)

	return r
}

// ReportDeps holds what the report scheduler's token-protected HTTP
// surface (C10) needs.
type ReportDeps struct {
	Logger  zerolog.Logger
	Timeout time.Duration
	Health  *handler.HealthHandler
	Report  *reportweb.Handler
}

// NewReport builds the router serving /report, /download/csv and
// /download/excel, each gated by the signed-link token.
func NewReport(deps ReportDeps) http.Handler {
	r := baseRouter(deps.Logger, deps.Timeout, deps.Health)
	r.Get("/report", deps.Report.Report)
	r.Get("/download/csv", deps.Report.DownloadCSV)
	r.Get("/download/excel", deps.Report.DownloadExcel)
	return r
}
