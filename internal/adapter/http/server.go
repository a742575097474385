package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FacilitySource resolves facility records from the current metadata snapshot.
type FacilitySource interface {
	sharedobs.ReadinessChecker
	Facility(ctx context.Context, code int64) (domain.FacilityRecord, error)
}

// PresentValuesSource fetches the latest readings of one station.
type PresentValuesSource interface {
	PresentValues(ctx context.Context, station int64) ([]domain.Record, error)
}

// Server exposes health, readiness, metrics and the read-only SNIH API.
type Server struct {
	httpServer *http.Server
	facilities FacilitySource
	present    PresentValuesSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 routes. gatherer backs /metrics; nil means the default registry.
func NewServer(addr string, facilities FacilitySource, present PresentValuesSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		facilities: facilities,
		present:    present,
		logger:     logger,
	}

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(facilities))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /v1/facilities/{code}", s.handleFacility)
	mux.HandleFunc("GET /v1/stations/{code}/present-values", s.handlePresentValues)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleFacility(w http.ResponseWriter, r *http.Request) {
	code, ok := stationCode(w, r)
	if !ok {
		return
	}
	rec, err := s.facilities.Facility(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePresentValues(w http.ResponseWriter, r *http.Request) {
	code, ok := stationCode(w, r)
	if !ok {
		return
	}
	records, err := s.present.PresentValues(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	schema, err := domain.SchemaFor(domain.KindMeasurement)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ToExternalForm(records, schema))
}

func stationCode(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("code")
	code, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid station code " + strconv.Quote(raw)})
		return 0, false
	}
	return code, true
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var te *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrStationNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrMetadataUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &te):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v) //nolint:errcheck // best-effort response body
}
