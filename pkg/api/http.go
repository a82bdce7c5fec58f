// Package api provides the read-only HTTP status endpoints of the publisher.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/agent"
	"github.com/StrathCole/pyth-publisher/pkg/aggregator"
	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/metrics"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
	"github.com/StrathCole/pyth-publisher/pkg/version"
)

// Status exposes the session side of the publisher.
type Status interface {
	Connected() bool
	Subscriptions() []agent.Subscription
}

// Mixer computes the prices reported by /v1/prices.
type Mixer interface {
	Symbols() []string
	Mix(symbol string) (aggregator.Result, error)
}

// Server represents the HTTP API server.
type Server struct {
	addr    string
	status  Status
	mixer   Mixer
	sources []sources.Source
	server  *http.Server
	logger  *logging.Logger
}

type sourceHealth struct {
	Name       string             `json:"name"`
	Type       sources.SourceType `json:"type"`
	Healthy    bool               `json:"healthy"`
	LastUpdate *time.Time         `json:"last_update,omitempty"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	RPC     string         `json:"rpc"`
	Version string         `json:"version"`
	Sources []sourceHealth `json:"sources"`
}

type priceEntry struct {
	Symbol     string                             `json:"symbol"`
	Price      *decimal.Decimal                   `json:"price,omitempty"`
	Confidence *decimal.Decimal                   `json:"confidence,omitempty"`
	Breakdown  map[string]aggregator.Contribution `json:"breakdown,omitempty"`
	Error      string                             `json:"error,omitempty"`
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, status Status, mixer Mixer, srcs []sources.Source, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:    addr,
		status:  status,
		mixer:   mixer,
		sources: srcs,
		logger:  logger,
	}
}

// Handler returns the routed endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("/v1/prices", s.instrument("/v1/prices", s.handlePrices))
	mux.HandleFunc("/v1/subscriptions", s.instrument("/v1/subscriptions", s.handleSubscriptions))
	return mux
}

// Start starts the HTTP server and blocks until it is stopped.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			metrics.RecordHTTPRequest(endpoint, strconv.Itoa(rec.code), time.Since(start))
		}()

		if r.Method != http.MethodGet {
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(rec, r)
	}
}

// handleHealth reports 503 while the agent session is down.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		RPC:     "connected",
		Version: version.Version,
		Sources: make([]sourceHealth, 0, len(s.sources)),
	}
	for _, src := range s.sources {
		h := sourceHealth{Name: src.Name(), Type: src.Type(), Healthy: src.IsHealthy()}
		if last := src.LastUpdate(); !last.IsZero() {
			h.LastUpdate = &last
		}
		resp.Sources = append(resp.Sources, h)
	}

	code := http.StatusOK
	if !s.status.Connected() {
		resp.Status = "unavailable"
		resp.RPC = "disconnected"
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, resp)
}

// handlePrices mixes every configured symbol. Failures are reported per entry.
func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	symbols := s.mixer.Symbols()
	out := make([]priceEntry, 0, len(symbols))
	for _, symbol := range symbols {
		res, err := s.mixer.Mix(symbol)
		if err != nil {
			out = append(out, priceEntry{Symbol: symbol, Error: err.Error()})
			continue
		}
		out = append(out, priceEntry{
			Symbol:     symbol,
			Price:      &res.Price,
			Confidence: &res.Confidence,
			Breakdown:  res.Breakdown,
		})
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, s.status.Subscriptions())
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
