package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/brojonat/geneva/service/actions"
	"github.com/brojonat/geneva/service/config"
	"github.com/brojonat/geneva/service/db"
	"github.com/brojonat/geneva/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Action protocol headers sent on every response.
const (
	headerActionVersion  = "X-Action-Version"
	headerBlockchainIDs  = "X-Blockchain-Ids"
	actionVersion        = "2.4"
	corsAllowedMethods   = "GET, POST, PUT, OPTIONS"
	corsAllowedHeaders   = "Content-Type, Authorization, Content-Encoding, Accept-Encoding"
	corsExposedHeaders   = "X-Action-Version, X-Blockchain-Ids"
	defaultGenerations   = 20
	maxGenerationsPerReq = 100
)

// Executor is the action surface the server routes to.
type Executor interface {
	Describe(step actions.StepName, baseURL string) (*actions.Descriptor, error)
	Execute(ctx context.Context, step actions.StepName, req actions.StepRequest, query url.Values, requestURL string) (*actions.StepResponse, error)
}

// Ledger lists recorded generations. Optional.
type Ledger interface {
	ListActionEventsByAccount(ctx context.Context, account string, withImage bool, limit int32) ([]*db.ActionEvent, error)
}

// Server represents the HTTP server for the action chain.
type Server struct {
	addr    string
	cfg     *config.Config
	actions Executor
	ledger  Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ledger is optional - if nil, the generations endpoint isn't registered.
// The metrics is optional - if nil, the metrics endpoint isn't registered.
func New(addr string, cfg *config.Config, exec Executor, ledger Ledger, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		cfg:     cfg,
		actions: exec,
		ledger:  ledger,
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	stepPattern := actions.BasePath + "/{step}"
	mux.Handle("GET "+stepPattern, s.instrument("action_get", handleDescribe(s.actions, s.cfg, s.logger)))
	mux.Handle("OPTIONS "+stepPattern, handleOptions())
	mux.Handle("POST "+stepPattern, s.instrument("action_post", handleExecute(s.actions, s.logger)))

	mux.Handle("GET /actions.json", handleActionsJSON())
	mux.Handle("OPTIONS /actions.json", handleOptions())
	mux.Handle("GET /api/v1/blink/qr", s.instrument("blink_qr", handleBlinkQR(s.cfg, s.logger)))

	if s.ledger != nil {
		mux.Handle("GET /api/v1/generations", s.instrument("generations", handleListGenerations(s.ledger, s.logger)))
	} else {
		s.logger.Warn("ledger not configured, generations endpoint disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return actionHeadersMiddleware(s.cfg.BlockchainID())(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation blocks the render step
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", s.addr,
		"payment_required", s.cfg.PaymentRequired,
		"mint_enabled", s.cfg.MintEnabled,
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// actionHeadersMiddleware adds the CORS and action protocol headers every
// action client expects, on every response including errors.
func actionHeadersMiddleware(blockchainID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
			h.Set(headerActionVersion, actionVersion)
			h.Set(headerBlockchainIDs, blockchainID)
			next.ServeHTTP(w, r)
		})
	}
}
