package apihttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"guardduty-billing/internal/auth"
	"guardduty-billing/internal/observability/logger"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	Auth           *auth.Middleware
	Metrics        http.Handler
	AllowedOrigins []string
	Log            *zap.Logger
}

// NewRouter mounts the API with its middleware stack.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(log.Named("access")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Wrap)
		}

		r.Get("/billing-codes/applicable", h.ApplicableCodes)
		r.Post("/rates/simulate", h.SimulateRate)

		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", h.ListIncidents)
			r.Post("/", h.CreateIncident)
			r.Get("/{id}", h.GetIncident)
			r.Patch("/{id}", h.UpdateIncident)
			r.Delete("/{id}", h.DeleteIncident)
			r.Post("/{id}/state", h.ChangeIncidentState)
			r.Get("/{id}/history", h.IncidentHistory)
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Post("/", h.GenerateSettlement)
			r.Get("/{id}", h.GetSettlement)
			r.Post("/{id}/status", h.ChangeSettlementStatus)
			r.Get("/{id}/export.{format}", h.ExportSettlement)
		})
	})
	return r
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			began := time.Now()
			defer func() {
				logger.With(r.Context(), log).Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(began)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("authorization", logger.MaskAuthorization(r.Header.Get("Authorization"))),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
