package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/snih-data-etl/internal/adapter/http"
	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFacilities struct {
	readyErr error
	records  map[int64]domain.FacilityRecord
	err      error
}

func (m *mockFacilities) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockFacilities) Facility(_ context.Context, code int64) (domain.FacilityRecord, error) {
	if m.err != nil {
		return domain.FacilityRecord{}, m.err
	}
	rec, ok := m.records[code]
	if !ok {
		return domain.FacilityRecord{}, fmt.Errorf("%w: %d", domain.ErrStationNotFound, code)
	}
	return rec, nil
}

type mockPresent struct {
	records []domain.Record
	err     error
	station int64
}

func (m *mockPresent) PresentValues(_ context.Context, station int64) ([]domain.Record, error) {
	m.station = station
	return m.records, m.err
}

func newTestServer(f *mockFacilities, p *mockPresent) *httpadapter.Server {
	return httpadapter.NewServer(":0", f, p, nil, slog.Default())
}

func get(t *testing.T, srv http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(&mockFacilities{}, &mockPresent{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(&mockFacilities{}, &mockPresent{}), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503BeforeFirstHarvest(t *testing.T) {
	srv := newTestServer(&mockFacilities{readyErr: pipeline.ErrMetadataUnavailable}, &mockPresent{})
	rec := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&mockFacilities{}, &mockPresent{}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsEndpointCustomGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "snih_etl_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := httpadapter.NewServer(":0", &mockFacilities{}, &mockPresent{}, reg, slog.Default())
	rec := get(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "snih_etl_test_total 1")
	assert.NotContains(t, rec.Body.String(), "go_goroutines")
}

func TestFacilityRoute(t *testing.T) {
	f := &mockFacilities{records: map[int64]domain.FacilityRecord{
		1001: {Identifier: "1001", Name: "Río Bermejo", OperatingStatus: domain.StatusOperational},
	}}
	srv := newTestServer(f, &mockPresent{})

	t.Run("found", func(t *testing.T) {
		rec := get(t, srv, "/v1/facilities/1001")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

		var body domain.FacilityRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Río Bermejo", body.Name)
		assert.Equal(t, domain.StatusOperational, body.OperatingStatus)
	})

	t.Run("unknown station", func(t *testing.T) {
		rec := get(t, srv, "/v1/facilities/4242")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "station not found")
	})

	t.Run("invalid code", func(t *testing.T) {
		rec := get(t, srv, "/v1/facilities/abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFacilityRouteErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"metadata not harvested", pipeline.ErrMetadataUnavailable, http.StatusServiceUnavailable},
		{"upstream failure", &domain.TransportError{Endpoint: "x", StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("broken"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&mockFacilities{err: tt.err}, &mockPresent{})
			rec := get(t, srv, "/v1/facilities/1")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPresentValuesRoute(t *testing.T) {
	at := time.Date(2023, time.December, 21, 19, 13, 7, 0, time.UTC)
	p := &mockPresent{records: []domain.Record{
		domain.NewRecord(
			domain.Field{Name: "Codigo", Value: domain.Integer(5)},
			domain.Field{Name: "FechaHora", Value: domain.Timestamp(at)},
			domain.Field{Name: "Valor", Value: domain.Absent()},
		),
	}}
	srv := newTestServer(&mockFacilities{}, p)

	rec := get(t, srv, "/v1/stations/1001/present-values")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1001), p.station)
	assert.JSONEq(t, `[{"Codigo":5,"FechaHora":"2023-12-21T19:13:07Z","Valor":null}]`, rec.Body.String())
}

func TestPresentValuesRouteUpstreamError(t *testing.T) {
	p := &mockPresent{err: &domain.TransportError{Endpoint: "MuestraDatos.aspx/LeerDatosActuales", Message: "connection refused"}}
	rec := get(t, newTestServer(&mockFacilities{}, p), "/v1/stations/1001/present-values")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
