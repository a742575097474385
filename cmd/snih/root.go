package main

import (
	"fmt"
	"log/slog"
	"sync"

	kafkaadapter "github.com/couchcryptid/snih-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/snih-data-etl/internal/adapter/snih"
	"github.com/couchcryptid/snih-data-etl/internal/config"
	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// Metrics register with the default registry, which only tolerates one set
// per process.
var processMetrics = sync.OnceValue(observability.NewMetrics)

// runtime carries what PersistentPreRunE loads for the subcommands.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func getRootCmd() *cobra.Command {
	rt := &runtime{clock: clockwork.NewRealClock()}

	rootCmd := &cobra.Command{
		Use:   "snih",
		Short: "snih harvests SNIH hydrological data",
		Long: `snih retrieves station metadata and time series from the Argentine
national hydrological information system (SNIH) and writes them as CSV or
JSON files. It can also synthesize facility records and serve them over HTTP.

Configuration is read from environment variables:
    SNIH_BASE_URL               SNIH web service root
    SNIH_TIMEOUT                per-request timeout (default 30s)
    SKIP_MALFORMED_RECORDS      drop records with bad timestamps instead of failing
    LOG_LEVEL, LOG_FORMAT       slog level and handler (json/text)
    KAFKA_BROKERS, KAFKA_TOPIC  enable --publish
    HTTP_ADDR                   listen address for serve`,
		Version:       Version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			rt.cfg = cfg
			rt.logger = observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			rt.metrics = processMetrics()
			return nil
		},
	}

	rootCmd.Flags().BoolP("version", "V", false, "version for snih")

	for _, ds := range pipeline.Datasets {
		rootCmd.AddCommand(getDatasetCmd(rt, ds))
	}
	rootCmd.AddCommand(getFacilityCmd(rt))
	rootCmd.AddCommand(getServeCmd(rt))

	return rootCmd
}

func (rt *runtime) client() *snih.Client {
	return snih.NewClient(rt.cfg.SNIHBaseURL, rt.cfg.SNIHTimeout, rt.metrics, rt.logger)
}

func (rt *runtime) harvester(t domain.Transport) *pipeline.Harvester {
	return pipeline.NewHarvester(t, rt.cfg.SkipMalformedRecords, rt.clock, rt.metrics, rt.logger)
}

func (rt *runtime) facilityBuilder() *pipeline.FacilityBuilder {
	return pipeline.NewFacilityBuilder(domain.FacilityConfig{
		Region:      rt.cfg.FacilityRegion,
		Territory:   rt.cfg.FacilityTerritory,
		FacilitySet: rt.cfg.FacilitySet,
	}, rt.metrics, rt.logger)
}

// publisher returns nil when publication is not configured. The returned
// close func is always safe to call.
func (rt *runtime) publisher() (pipeline.Publisher, func()) {
	if !rt.cfg.PublishEnabled() {
		return nil, func() {}
	}
	p := kafkaadapter.NewPublisher(rt.cfg, rt.metrics, rt.logger)
	return p, func() {
		if err := p.Close(); err != nil {
			rt.logger.Error("kafka publisher close error", "error", err)
		}
	}
}
