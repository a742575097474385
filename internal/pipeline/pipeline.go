package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Dataset names one exportable SNIH list.
type Dataset string

const (
	DatasetSites         Dataset = "sites"
	DatasetVariables     Dataset = "variables"
	DatasetObservations  Dataset = "observations"
	DatasetPresentValues Dataset = "present-values"
	DatasetLastRecords   Dataset = "last-records"
	DatasetHistorical    Dataset = "historical"
)

// Datasets lists every exportable dataset in CLI order.
var Datasets = []Dataset{
	DatasetSites, DatasetVariables, DatasetObservations,
	DatasetPresentValues, DatasetLastRecords, DatasetHistorical,
}

// DefaultLookback is the date range used when a time-series request gives no dates.
const DefaultLookback = 7 * 24 * time.Hour

// Kind returns the schema kind of the dataset's records.
func (d Dataset) Kind() domain.DatasetKind {
	switch d {
	case DatasetSites:
		return domain.KindStation
	case DatasetVariables:
		return domain.KindVariableCode
	case DatasetObservations:
		return domain.KindAssociation
	case DatasetPresentValues:
		return domain.KindMeasurement
	case DatasetLastRecords:
		return domain.KindFlatRecord
	case DatasetHistorical:
		return domain.KindHistoricalRecord
	default:
		return ""
	}
}

func (d Dataset) needsStation() bool {
	return d == DatasetPresentValues || d == DatasetLastRecords || d == DatasetHistorical
}

func (d Dataset) isSeries() bool {
	return d == DatasetLastRecords || d == DatasetHistorical
}

// Sink persists exported data.
type Sink interface {
	WriteRecords(path string, format domain.OutputFormat, records []domain.Record, schema domain.FieldSchema) (int64, error)
	WriteDocument(path string, v any) (int64, error)
}

// Publisher forwards exported documents downstream.
type Publisher interface {
	Publish(ctx context.Context, dataset, runID string, docs []domain.Document) error
}

// Request describes one export run.
type Request struct {
	Dataset Dataset
	Output  string
	Format  domain.OutputFormat

	Station   *int64
	Variable  *int64
	From      time.Time
	To        time.Time
	Validated bool

	Publish bool
}

// Result summarizes a finished export.
type Result struct {
	RunID     string
	Dataset   Dataset
	Records   int
	Bytes     int64
	Published int
	From      time.Time
	To        time.Time
}

// Exporter runs one harvest, writes it to the sink, and optionally publishes it.
type Exporter struct {
	harvester *Harvester
	facility  *FacilityBuilder
	sink      Sink
	publisher Publisher
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewExporter creates an Exporter. publisher may be nil when publication is
// not configured.
func NewExporter(h *Harvester, fb *FacilityBuilder, sink Sink, publisher Publisher, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Exporter {
	return &Exporter{
		harvester: h,
		facility:  fb,
		sink:      sink,
		publisher: publisher,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run executes req. The output file is written before anything is
// published, so a publish failure still leaves the export on disk.
func (e *Exporter) Run(ctx context.Context, req Request) (Result, error) {
	req, err := e.prepare(req)
	if err != nil {
		return Result{}, err
	}
	res := Result{RunID: uuid.NewString(), Dataset: req.Dataset, From: req.From, To: req.To}
	logger := e.logger.With("run_id", res.RunID, "dataset", req.Dataset)
	logger.Info("export started", "output", req.Output, "format", req.Format)

	records, err := e.harvest(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", req.Dataset, err)
	}
	res.Records = len(records)

	schema, err := domain.SchemaFor(req.Dataset.Kind())
	if err != nil {
		return Result{}, err
	}
	res.Bytes, err = e.sink.WriteRecords(req.Output, req.Format, records, schema)
	if err != nil {
		return Result{}, err
	}
	e.metrics.RecordsExported.WithLabelValues(string(req.Dataset), string(req.Format)).Add(float64(len(records)))

	if req.Publish {
		docs := recordDocuments(req, records, schema)
		if err := e.publish(ctx, string(req.Dataset), res.RunID, docs); err != nil {
			return res, err
		}
		res.Published = len(docs)
	}

	logger.Info("export finished", "records", res.Records, "bytes", res.Bytes, "published", res.Published)
	return res, nil
}

var errNoPublisher = fmt.Errorf("%w: publishing requested but KAFKA_BROKERS is not set", ErrInvalidRequest)

// FacilityRequest describes one facility synthesis run.
type FacilityRequest struct {
	Station int64
	Output  string
	Publish bool
}

// Facility harvests the metadata catalog, synthesizes the station's facility
// record, and writes it as a JSON document.
func (e *Exporter) Facility(ctx context.Context, req FacilityRequest) (Result, domain.FacilityRecord, error) {
	if req.Output == "" {
		return Result{}, domain.FacilityRecord{}, fmt.Errorf("%w: output path is required", ErrInvalidRequest)
	}
	if req.Publish && e.publisher == nil {
		return Result{}, domain.FacilityRecord{}, errNoPublisher
	}
	res := Result{RunID: uuid.NewString(), Dataset: "facility"}

	md, err := e.harvester.Metadata(ctx)
	if err != nil {
		return Result{}, domain.FacilityRecord{}, err
	}
	rec, err := e.facility.Build(req.Station, md.Catalog)
	if err != nil {
		return Result{}, domain.FacilityRecord{}, err
	}

	res.Records = 1
	res.Bytes, err = e.sink.WriteDocument(req.Output, rec)
	if err != nil {
		return Result{}, domain.FacilityRecord{}, err
	}

	if req.Publish {
		doc := domain.Document{Key: rec.Identifier, Body: rec}
		if err := e.publish(ctx, "facility", res.RunID, []domain.Document{doc}); err != nil {
			return res, rec, err
		}
		res.Published = 1
	}
	e.logger.Info("facility written", "run_id", res.RunID, "station", req.Station, "output", req.Output)
	return res, rec, nil
}

func (e *Exporter) prepare(req Request) (Request, error) {
	if req.Dataset.Kind() == "" {
		return req, fmt.Errorf("%w: unknown dataset %q", ErrInvalidRequest, req.Dataset)
	}
	if req.Output == "" {
		return req, fmt.Errorf("%w: output path is required", ErrInvalidRequest)
	}
	format, err := domain.ParseOutputFormat(string(req.Format))
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Format = format

	if req.Dataset.needsStation() && req.Station == nil {
		return req, fmt.Errorf("%w: %s requires a site", ErrInvalidRequest, req.Dataset)
	}
	if req.Dataset.isSeries() {
		if req.Variable == nil {
			return req, fmt.Errorf("%w: %s requires a variable", ErrInvalidRequest, req.Dataset)
		}
		if req.To.IsZero() {
			req.To = e.clock.Now()
		}
		if req.From.IsZero() {
			req.From = req.To.Add(-DefaultLookback)
		}
	}
	if req.Publish && e.publisher == nil {
		return req, errNoPublisher
	}
	return req, nil
}

func (e *Exporter) harvest(ctx context.Context, req Request) ([]domain.Record, error) {
	switch req.Dataset {
	case DatasetSites:
		return e.harvester.Stations(ctx)
	case DatasetVariables:
		return e.harvester.VariableCodes(ctx)
	case DatasetObservations:
		return e.harvester.Associations(ctx)
	case DatasetPresentValues:
		return e.harvester.PresentValues(ctx, *req.Station)
	case DatasetLastRecords:
		return e.harvester.LastRecords(ctx, seriesQuery(req))
	case DatasetHistorical:
		return e.harvester.HistoricalRecords(ctx, seriesQuery(req), req.Validated)
	default:
		return nil, fmt.Errorf("%w: unknown dataset %q", ErrInvalidRequest, req.Dataset)
	}
}

func (e *Exporter) publish(ctx context.Context, dataset, runID string, docs []domain.Document) error {
	if err := e.publisher.Publish(ctx, dataset, runID, docs); err != nil {
		return fmt.Errorf("publish %s: %w", dataset, err)
	}
	return nil
}

func seriesQuery(req Request) SeriesQuery {
	return SeriesQuery{Station: *req.Station, Variable: *req.Variable, From: req.From, To: req.To}
}

// recordDocuments keys time series by station and metadata by record code.
func recordDocuments(req Request, records []domain.Record, schema domain.FieldSchema) []domain.Document {
	ext := domain.ToExternalForm(records, schema)
	docs := make([]domain.Document, len(ext))
	for i, r := range ext {
		docs[i] = domain.Document{Key: documentKey(req, r), Body: r}
	}
	return docs
}

func documentKey(req Request, r domain.ExternalRecord) string {
	if req.Station != nil {
		return strconv.FormatInt(*req.Station, 10)
	}
	if v, ok := r.Get("Codigo"); ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
