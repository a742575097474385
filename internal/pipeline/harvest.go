package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRequest reports missing or inconsistent request parameters.
var ErrInvalidRequest = errors.New("invalid request")

// endpoint describes one SNIH page method: where its list lives in the
// response and which schema applies to the list items.
type endpoint struct {
	path     string
	listPath []string
	kind     domain.DatasetKind
}

var (
	endpointStations     = endpoint{"Filtros.aspx/LeerEstaciones", []string{"d"}, domain.KindStation}
	endpointVariables    = endpoint{"MuestraDatos.aspx/LeerCodigosMedicion", []string{"d"}, domain.KindVariableCode}
	endpointAssociations = endpoint{"MuestraDatos.aspx/LeerListaAsociaciones", []string{"d"}, domain.KindAssociation}
	endpointPresent      = endpoint{"MuestraDatos.aspx/LeerDatosActuales", []string{"d", "Mediciones"}, domain.KindMeasurement}
	endpointLastRecords  = endpoint{"MuestraDatos.aspx/LeerUltimosRegistros", []string{"d", "Mediciones"}, domain.KindFlatRecord}
	endpointHistorical   = endpoint{"MuestraDatos.aspx/LeerDatosHistoricos", []string{"d", "Mediciones"}, domain.KindHistoricalRecord}
)

// requestDateLayout is the date format the service expects in request bodies.
const requestDateLayout = "2006-01-02"

// The service expects every identifier as a JSON string.
type stationRequest struct {
	Estacion string `json:"estacion"`
}

type seriesRequest struct {
	Estacion   string `json:"estacion"`
	Codigo     string `json:"codigo"`
	FechaDesde string `json:"fechaDesde"`
	FechaHasta string `json:"fechaHasta"`
}

type historicalRequest struct {
	seriesRequest
	Validados bool `json:"validados"`
}

// SeriesQuery selects one variable at one station over a date range.
// Only the calendar dates of From and To are sent.
type SeriesQuery struct {
	Station  int64
	Variable int64
	From     time.Time
	To       time.Time
}

func (q SeriesQuery) validate() error {
	if q.From.IsZero() || q.To.IsZero() {
		return fmt.Errorf("%w: begin and end dates are required", ErrInvalidRequest)
	}
	if q.To.Before(q.From) {
		return fmt.Errorf("%w: end date %s is before begin date %s", ErrInvalidRequest,
			q.To.Format(requestDateLayout), q.From.Format(requestDateLayout))
	}
	return nil
}

func (q SeriesQuery) body() seriesRequest {
	return seriesRequest{
		Estacion:   strconv.FormatInt(q.Station, 10),
		Codigo:     strconv.FormatInt(q.Variable, 10),
		FechaDesde: q.From.Format(requestDateLayout),
		FechaHasta: q.To.Format(requestDateLayout),
	}
}

// Harvester retrieves SNIH datasets and returns them normalized.
type Harvester struct {
	transport     domain.Transport
	skipMalformed bool
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewHarvester creates a Harvester. With skipMalformed set, records that fail
// normalization are logged and dropped instead of failing the whole dataset.
func NewHarvester(t domain.Transport, skipMalformed bool, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Harvester {
	return &Harvester{
		transport:     t,
		skipMalformed: skipMalformed,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}
}

func (h *Harvester) Stations(ctx context.Context) ([]domain.Record, error) {
	return h.fetchList(ctx, endpointStations, nil)
}

func (h *Harvester) VariableCodes(ctx context.Context) ([]domain.Record, error) {
	return h.fetchList(ctx, endpointVariables, nil)
}

func (h *Harvester) Associations(ctx context.Context) ([]domain.Record, error) {
	return h.fetchList(ctx, endpointAssociations, nil)
}

// PresentValues returns the latest reading of every variable at a station.
func (h *Harvester) PresentValues(ctx context.Context, station int64) ([]domain.Record, error) {
	return h.fetchList(ctx, endpointPresent, stationRequest{Estacion: strconv.FormatInt(station, 10)})
}

// LastRecords returns the recent readings of one variable, flattened to one
// record per (instant, variable) pair.
func (h *Harvester) LastRecords(ctx context.Context, q SeriesQuery) ([]domain.Record, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	items, err := h.fetchItems(ctx, endpointLastRecords, q.body())
	if err != nil {
		return nil, err
	}
	nested, err := domain.DecodeNestedRecords(items)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpointLastRecords.path, err)
	}
	return h.normalize(endpointLastRecords, domain.FlattenAll(nested))
}

// HistoricalRecords returns the archived series of one variable. validated
// restricts the result to quality-controlled values.
func (h *Harvester) HistoricalRecords(ctx context.Context, q SeriesQuery, validated bool) ([]domain.Record, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return h.fetchList(ctx, endpointHistorical, historicalRequest{seriesRequest: q.body(), Validados: validated})
}

// Metadata is one consistent snapshot of the three metadata datasets.
type Metadata struct {
	Stations     []domain.Record
	Variables    []domain.Record
	Associations []domain.Record
	Catalog      domain.Catalog
	HarvestedAt  time.Time
}

// Metadata fetches stations, variable codes, and associations concurrently.
// Any failure cancels the remaining requests.
func (h *Harvester) Metadata(ctx context.Context) (*Metadata, error) {
	start := h.clock.Now()
	md := &Metadata{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		md.Stations, err = h.Stations(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		md.Variables, err = h.VariableCodes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		md.Associations, err = h.Associations(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("harvest metadata: %w", err)
	}

	cat, err := domain.NewCatalog(md.Stations, md.Variables, md.Associations)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	md.Catalog = cat
	md.HarvestedAt = h.clock.Now()

	elapsed := md.HarvestedAt.Sub(start)
	h.metrics.MetadataHarvestDuration.Observe(elapsed.Seconds())
	h.logger.Info("metadata harvested",
		"stations", len(md.Stations),
		"variables", len(md.Variables),
		"associations", len(md.Associations),
		"duration", elapsed,
	)
	return md, nil
}

func (h *Harvester) fetchList(ctx context.Context, ep endpoint, body any) ([]domain.Record, error) {
	items, err := h.fetchItems(ctx, ep, body)
	if err != nil {
		return nil, err
	}
	raws, err := domain.DecodeRawRecords(items)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ep.path, err)
	}
	return h.normalize(ep, raws)
}

func (h *Harvester) fetchItems(ctx context.Context, ep endpoint, body any) ([]json.RawMessage, error) {
	doc, err := h.transport.Fetch(ctx, ep.path, body)
	if err != nil {
		return nil, err
	}
	items, err := domain.ExtractList(doc, ep.listPath...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ep.path, err)
	}
	return items, nil
}

func (h *Harvester) normalize(ep endpoint, raws []domain.RawRecord) ([]domain.Record, error) {
	schema, err := domain.SchemaFor(ep.kind)
	if err != nil {
		return nil, err
	}
	dataset := string(ep.kind)

	if !h.skipMalformed {
		recs, err := domain.Normalize(raws, schema)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ep.path, err)
		}
		h.metrics.RecordsNormalized.WithLabelValues(dataset).Add(float64(len(recs)))
		return recs, nil
	}

	recs, skipped := domain.NormalizeLenient(raws, schema)
	for _, s := range skipped {
		h.logger.Warn("malformed record skipped", "dataset", dataset, "index", s.Index, "error", s.Err)
	}
	h.metrics.RecordsSkipped.WithLabelValues(dataset).Add(float64(len(skipped)))
	h.metrics.RecordsNormalized.WithLabelValues(dataset).Add(float64(len(recs)))
	return recs, nil
}
