package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

const (
	maxBodyBytes = 64 << 10
	sinkTimeout  = 30 * time.Second
)

// Asker answers one question.
type Asker interface {
	Process(ctx context.Context, query string) (domain.AskResult, error)
}

// Server exposes the ask endpoint plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	asker      Asker
	sinks      []domain.ResultSink
	logger     *slog.Logger
	publishing sync.WaitGroup
}

// NewServer creates an HTTP server with POST /v1/ask, /healthz, /readyz, and
// /metrics routes. Completed results are handed to every sink in the
// background; sink failures are logged and never reach the caller.
func NewServer(addr string, asker Asker, ready sharedobs.ReadinessChecker, sinks []domain.ResultSink, requestTimeout time.Duration, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: requestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		asker:  asker,
		sinks:  sinks,
		logger: logger,
	}

	r.Post("/v1/ask", s.handleAsk)
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections and waits for in-flight sink publishes within
// the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown before result publishing finished")
	}
	return err
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type askRequest struct {
	Query string `json:"query"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
			Kind:    "invalid_request",
			Message: `request body must be JSON like {"query": "..."}`,
		}})
		return
	}

	result, err := s.asker.Process(r.Context(), req.Query)
	if err != nil {
		kind := domain.KindOf(err)
		s.logger.Warn("ask request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"kind", kind,
			"error", err,
		)
		writeJSON(w, statusFor(err), errorBody{Error: errorDetail{Kind: string(kind), Message: domain.UserMessage(err)}})
		return
	}

	writeJSON(w, http.StatusOK, result)
	s.publish(result)
}

// publish hands the result to the sinks on a context detached from the
// request, so a client disconnect does not abort the upload.
func (s *Server) publish(result domain.AskResult) {
	if len(s.sinks) == 0 {
		return
	}
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		for _, sink := range s.sinks {
			if err := sink.Publish(ctx, result); err != nil {
				s.logger.Warn("result sink failed", "query_id", result.QueryID, "error", err)
			}
		}
	}()
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInputAmbiguous:
		return http.StatusUnprocessableEntity
	case domain.KindUpstreamUnavailable, domain.KindMalformedModelOutput:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
