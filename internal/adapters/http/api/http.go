// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/pairank/internal/validation"
	"github.com/okian/pairank/pkg/logger"
	"github.com/okian/pairank/pkg/metrics"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ItemDependencies
	PairDependencies
	VoteDependencies
	RankingsDependencies
	ReliabilityDependencies
	StatsProvider
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	itemsHandler       *ItemsHandler
	pairHandler        *PairHandler
	votesHandler       *VotesHandler
	rankingsHandler    *RankingsHandler
	reliabilityHandler *ReliabilityHandler

	corsOrigins   []string
	votesPerMin   int
	maxLimit      int
	logger        logger.Logger
	extraHandlers map[string]http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMaxRankingsLimit caps GET /rankings?limit.
func WithMaxRankingsLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithRateLimit bounds vote mutations per client IP and minute. 0 disables it.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute >= 0 {
			s.votesPerMin = perMinute
		}
	}
}

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHandler mounts an additional GET handler, e.g. the API docs.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.extraHandlers[pattern] = h
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxLimit:      100,
		logger:        logger.Nop(),
		extraHandlers: map[string]http.Handler{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.itemsHandler = NewItemsHandler(deps, s.logger)
	s.pairHandler = NewPairHandler(deps, s.logger)
	s.votesHandler = NewVotesHandler(deps, s.logger)
	s.rankingsHandler = NewRankingsHandler(deps, s.maxLimit, s.logger)
	s.reliabilityHandler = NewReliabilityHandler(deps, s.logger)
	return s
}

// Handler builds the chi router with every route.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			MaxAge:         86400,
		}))
	}

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/items", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.itemsHandler.HandleAddItems, "items"))
		r.Get("/{id}", MetricsMiddleware(s.itemsHandler.HandleGetItem, "item"))
		r.Delete("/{id}", MetricsMiddleware(s.itemsHandler.HandleRemoveItem, "item"))
	})

	r.Get("/pair", MetricsMiddleware(s.pairHandler.HandleGetPair, "pair"))

	r.Route("/votes", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.votesHandler.HandleHistory, "votes"))
		r.Group(func(r chi.Router) {
			if s.votesPerMin > 0 {
				r.Use(httprate.LimitByIP(s.votesPerMin, time.Minute))
			}
			r.Post("/", MetricsMiddleware(s.votesHandler.HandleVote, "votes"))
			r.Post("/undo", MetricsMiddleware(s.votesHandler.HandleUndo, "votes_undo"))
			r.Put("/{seq}", MetricsMiddleware(s.votesHandler.HandleEditVote, "vote"))
			r.Delete("/{seq}", MetricsMiddleware(s.votesHandler.HandleRemoveVote, "vote"))
		})
	})

	r.Get("/rankings", MetricsMiddleware(s.rankingsHandler.HandleGetRankings, "rankings"))
	r.Get("/reliability", MetricsMiddleware(s.reliabilityHandler.HandleGetReliability, "reliability"))
	r.Post("/rebuild", MetricsMiddleware(s.reliabilityHandler.HandleRebuild, "rebuild"))

	for pattern, h := range s.extraHandlers {
		r.Method(http.MethodGet, pattern, h)
	}

	s.logger.Debug(ctx, "routes registered", logger.Int("extra", len(s.extraHandlers)))
	return r
}

type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and writes the error body. Server-side
// failures are logged.
func writeError(ctx context.Context, l logger.Logger, w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	resp := errorResponse{Code: code, Message: err.Error()}
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed", logger.Error(err), logger.String("request_id", chimiddleware.GetReqID(ctx)))
		if status == http.StatusInternalServerError {
			resp.Message = http.StatusText(status)
		}
	}
	if verr, ok := asValidation(err); ok {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := validation.Struct(v); err != nil {
		return Wrap(op, err)
	}
	return nil
}
