package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/snih-data-etl/internal/adapter/export"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func getFacilityCmd(rt *runtime) *cobra.Command {
	var (
		site    int64
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "facility OUTPUT",
		Short: "Synthesize the facility record of a station as JSON",
		Long: `Harvest the station, variable and association catalogs, join them for
one station and write the resulting facility record as a JSON document.

Examples:
  snih facility --site 1001 facility-1001.json
  snih facility -s 1001 --publish facility-1001.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFacility(cmd, rt, pipeline.FacilityRequest{Station: site, Output: args[0], Publish: publish})
		},
	}

	cmd.Flags().Int64VarP(&site, "site", "s", 0, "site ID")
	cmd.Flags().BoolVar(&publish, "publish", false, "also publish the record to KAFKA_TOPIC")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

func runFacility(cmd *cobra.Command, rt *runtime, req pipeline.FacilityRequest) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, closePub := rt.publisher()
	defer closePub()

	exporter := pipeline.NewExporter(
		rt.harvester(rt.client()),
		rt.facilityBuilder(),
		export.NewFileSink(rt.logger),
		pub,
		rt.clock,
		rt.metrics,
		rt.logger,
	)

	res, rec, err := exporter.Facility(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote facility %s (%s, %d observed variables) to %s (%s)\n",
		rec.Identifier, rec.OperatingStatus, len(rec.Observations), req.Output,
		humanize.Bytes(uint64(res.Bytes))) //nolint:gosec // byte counts are never negative
	return nil
}
