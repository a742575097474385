package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
)

// FacilityBuilder synthesizes facility records and reports the non-fatal
// findings through logs and metrics.
type FacilityBuilder struct {
	cfg     domain.FacilityConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewFacilityBuilder(cfg domain.FacilityConfig, metrics *observability.Metrics, logger *slog.Logger) *FacilityBuilder {
	return &FacilityBuilder{cfg: cfg, metrics: metrics, logger: logger}
}

// Build returns the facility record for station code. domain.ErrStationNotFound
// is returned when the catalog has no such station.
func (b *FacilityBuilder) Build(code int64, cat domain.Catalog) (domain.FacilityRecord, error) {
	syn, err := domain.SynthesizeFacility(code, cat, b.cfg)
	if err != nil {
		return domain.FacilityRecord{}, err
	}
	for _, d := range syn.Diagnostics {
		b.metrics.FacilityDiagnostics.WithLabelValues(string(d.Kind)).Inc()
		b.logger.Warn(d.Message,
			"kind", d.Kind,
			"station", d.Station,
			"before", d.Before,
			"after", d.After,
		)
	}
	b.logger.Debug("facility synthesized", "station", code, "observations", len(syn.Facility.Observations))
	return syn.Facility, nil
}
