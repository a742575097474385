package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	endpointStations     = "Filtros.aspx/LeerEstaciones"
	endpointVariables    = "MuestraDatos.aspx/LeerCodigosMedicion"
	endpointAssociations = "MuestraDatos.aspx/LeerListaAsociaciones"
	endpointPresent      = "MuestraDatos.aspx/LeerDatosActuales"
	endpointLastRecords  = "MuestraDatos.aspx/LeerUltimosRegistros"
	endpointHistorical   = "MuestraDatos.aspx/LeerDatosHistoricos"
)

var fixtureFiles = map[string]string{
	endpointStations:     "stations.json",
	endpointVariables:    "variables.json",
	endpointAssociations: "associations.json",
	endpointPresent:      "present_values.json",
	endpointLastRecords:  "last_records.json",
	endpointHistorical:   "historical.json",
}

// testNow is the fake clock's start: 2024-03-15 12:00 UTC.
var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

// 1703185987000 ms.
var fixtureInstant = time.Date(2023, time.December, 21, 19, 13, 7, 0, time.UTC)

// --- fake transport ---

type call struct {
	Endpoint string
	Body     map[string]any
}

// fakeTransport serves testdata fixtures by endpoint and records every call.
type fakeTransport struct {
	mu     sync.Mutex
	docs   map[string][]byte
	errs   map[string]error
	calls  []call
	counts map[string]int
}

func newFakeTransport(t *testing.T) *fakeTransport {
	t.Helper()
	ft := &fakeTransport{
		docs:   make(map[string][]byte),
		errs:   make(map[string]error),
		counts: make(map[string]int),
	}
	for ep, file := range fixtureFiles {
		data, err := os.ReadFile(filepath.Join("testdata", file))
		require.NoError(t, err)
		ft.docs[ep] = data
	}
	return ft
}

func (f *fakeTransport) Fetch(ctx context.Context, endpoint string, body any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var decoded map[string]any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &decoded); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Endpoint: endpoint, Body: decoded})
	f.counts[endpoint]++
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[endpoint]
	if !ok {
		return nil, &domain.TransportError{Endpoint: endpoint, StatusCode: 404, Message: "not found"}
	}
	return doc, nil
}

func (f *fakeTransport) setDoc(endpoint, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[endpoint] = []byte(doc)
}

func (f *fakeTransport) setErr(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[endpoint] = err
}

func (f *fakeTransport) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[endpoint]
}

func (f *fakeTransport) lastCall(endpoint string) call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Endpoint == endpoint {
			return f.calls[i]
		}
	}
	return call{}
}

var errUpstream = errors.New("upstream unavailable")

// --- fake sink and publisher ---

type sinkWrite struct {
	Path    string
	Format  domain.OutputFormat
	Records []domain.Record
	Doc     any
}

type fakeSink struct {
	writes []sinkWrite
	err    error
}

func (s *fakeSink) WriteRecords(path string, format domain.OutputFormat, records []domain.Record, _ domain.FieldSchema) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.writes = append(s.writes, sinkWrite{Path: path, Format: format, Records: records})
	return int64(100 * len(records)), nil
}

func (s *fakeSink) WriteDocument(path string, v any) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.writes = append(s.writes, sinkWrite{Path: path, Format: domain.FormatJSON, Doc: v})
	return 42, nil
}

type publishCall struct {
	Dataset string
	RunID   string
	Docs    []domain.Document
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, dataset, runID string, docs []domain.Document) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, publishCall{Dataset: dataset, RunID: runID, Docs: docs})
	return nil
}

// --- constructors ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFacilityConfig() domain.FacilityConfig {
	return domain.FacilityConfig{Region: "South America", Territory: "Argentina", FacilitySet: "SNIH"}
}

type harness struct {
	transport *fakeTransport
	clock     *clockwork.FakeClock
	metrics   *observability.Metrics
	harvester *pipeline.Harvester
	facility  *pipeline.FacilityBuilder
}

func newHarness(t *testing.T, skipMalformed bool) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(t),
		clock:     clockwork.NewFakeClockAt(testNow),
		metrics:   observability.NewMetricsForTesting(),
	}
	h.harvester = pipeline.NewHarvester(h.transport, skipMalformed, h.clock, h.metrics, discardLogger())
	h.facility = pipeline.NewFacilityBuilder(testFacilityConfig(), h.metrics, discardLogger())
	return h
}

func int64Ptr(v int64) *int64 { return &v }
