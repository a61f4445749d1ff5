// Package api exposes device registration, reading queries and the internal
// save-reading endpoint over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/broker"
	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/logging"
	"github.com/septivank/sensor-telemetry/internal/query"
	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/webutil"
)

const (
	apiBasePath    = "/api"
	maxRequestBody = 1 << 20
)

// Registry registers and lists devices
type Registry interface {
	Register(ctx context.Context, deviceID, ownerID, displayName string) (registry.Device, error)
	ListDevices(ctx context.Context, ownerID string) ([]registry.Device, error)
}

// Querier answers owner-scoped reading queries
type Querier interface {
	QueryReadings(ctx context.Context, deviceID, requesterID string, window query.Window, limit int) ([]db.Reading, error)
}

// Ingester stores a single reading
type Ingester interface {
	Ingest(ctx context.Context, deviceID, sensorType, rawValue string, arrivalTime time.Time) error
}

// BrokerStatus reports broker link health
type BrokerStatus interface {
	Connected() bool
	Stats() broker.Stats
}

// Options holds HTTP layer settings
type Options struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	IngestToken    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server holds the HTTP handlers and their dependencies
type Server struct {
	registry Registry
	queries  Querier
	ingester Ingester
	broker   BrokerStatus
	opts     Options
	jwt      *jwtmiddleware.JWTMiddleware
	handlers *webutil.Handlers
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer creates the HTTP server. brokerStatus may be nil.
func NewServer(
	reg Registry,
	queries Querier,
	ingester Ingester,
	brokerStatus BrokerStatus,
	opts Options,
	logger *zap.Logger,
) (*Server, error) {
	jwt, err := newJWTMiddleware(opts.JWTSecret, opts.JWTIssuer, opts.JWTAudience, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		registry: reg,
		queries:  queries,
		ingester: ingester,
		broker:   brokerStatus,
		opts:     opts,
		jwt:      jwt,
		handlers: webutil.NewHandlers(logger),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", IngestTokenHeader},
		AllowCredentials: true,
	}).Handler)

	r.Route(apiBasePath, func(r chi.Router) {
		r.With(requireIngestToken(s.opts.IngestToken)).Post("/save-data", s.handlers.Make(s.handleSaveData))

		r.Group(func(r chi.Router) {
			r.Use(s.jwt.CheckJWT)
			r.Post("/devices", s.handlers.Make(s.handleRegisterDevice))
			r.Get("/devices", s.handlers.Make(s.handleListDevices))
			r.Get("/data", s.handlers.Make(s.handleQueryData))
		})
	})

	r.Get("/healthz", s.handlers.Make(s.handleHealth))

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logging.WithRequestID(logger, middleware.GetReqID(r.Context())).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type healthResponse struct {
	Status string        `json:"status"`
	Broker *brokerHealth `json:"broker,omitempty"`
}

type brokerHealth struct {
	Connected bool         `json:"connected"`
	Stats     broker.Stats `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	resp := healthResponse{Status: "ok"}
	if s.broker != nil {
		resp.Broker = &brokerHealth{
			Connected: s.broker.Connected(),
			Stats:     s.broker.Stats(),
		}
	}
	return webutil.RespondWithJSON(w, http.StatusOK, resp)
}
