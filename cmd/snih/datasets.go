package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/adapter/export"
	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var datasetDescriptions = map[pipeline.Dataset]string{
	pipeline.DatasetSites:         "Export the station catalog",
	pipeline.DatasetVariables:     "Export the variable (measurement code) catalog",
	pipeline.DatasetObservations:  "Export station/variable associations",
	pipeline.DatasetPresentValues: "Export the latest readings of a station",
	pipeline.DatasetLastRecords:   "Export recent time series of a station variable",
	pipeline.DatasetHistorical:    "Export historical time series of a station variable",
}

// Accepted layouts for --begin_date and --end_date.
var dateLayouts = []string{"2006-01-02T15:04:05", "2006-01-02"}

func getDatasetCmd(rt *runtime, ds pipeline.Dataset) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(ds) + " OUTPUT",
		Short: datasetDescriptions[ds],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDataset(cmd, rt, ds, args[0])
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", "csv", "output format: csv or json")
	f.Bool("publish", false, "also publish the records to KAFKA_TOPIC")

	switch ds {
	case pipeline.DatasetPresentValues:
		f.Int64P("site", "s", 0, "site ID (required)")
	case pipeline.DatasetLastRecords, pipeline.DatasetHistorical:
		f.Int64P("site", "s", 0, "site ID (required)")
		f.Int64P("variable", "v", 0, "variable ID (required)")
		f.StringP("begin_date", "b", "", "begin date, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS (default 7 days before end)")
		f.StringP("end_date", "e", "", "end date, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS (default now)")
	}
	if ds == pipeline.DatasetHistorical {
		f.Bool("validated", true, "request validated data only")
	}

	return cmd
}

func runDataset(cmd *cobra.Command, rt *runtime, ds pipeline.Dataset, output string) error {
	req, err := buildRequest(cmd, ds, output)
	if err != nil {
		return err
	}

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

	res, err := exporter.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s records to %s (%s)\n",
		res.Records, ds, output, humanize.Bytes(uint64(res.Bytes))) //nolint:gosec // byte counts are never negative
	if res.Published > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Published %s documents (run %s)\n", humanize.Comma(int64(res.Published)), res.RunID)
	}
	return nil
}

// buildRequest maps the command's flags onto a pipeline request. Site and
// variable are only carried when set, so the exporter can tell a missing
// site from site 0. Flags a dataset does not define read as their zero value.
func buildRequest(cmd *cobra.Command, ds pipeline.Dataset, output string) (pipeline.Request, error) {
	f := cmd.Flags()

	rawFormat, _ := f.GetString("format")
	format, err := domain.ParseOutputFormat(rawFormat)
	if err != nil {
		return pipeline.Request{}, err
	}
	publish, _ := f.GetBool("publish")
	validated, _ := f.GetBool("validated")

	req := pipeline.Request{
		Dataset:   ds,
		Output:    output,
		Format:    format,
		Validated: validated,
		Publish:   publish,
	}

	if f.Changed("site") {
		site, _ := f.GetInt64("site")
		req.Station = &site
	}
	if f.Changed("variable") {
		variable, _ := f.GetInt64("variable")
		req.Variable = &variable
	}

	begin, _ := f.GetString("begin_date")
	end, _ := f.GetString("end_date")
	if req.From, err = parseDate(begin); err != nil {
		return pipeline.Request{}, fmt.Errorf("begin_date: %w", err)
	}
	if req.To, err = parseDate(end); err != nil {
		return pipeline.Request{}, fmt.Errorf("end_date: %w", err)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.From.After(req.To) {
		return pipeline.Request{}, fmt.Errorf("begin_date %s is after end_date %s", begin, end)
	}
	return req, nil
}

// parseDate returns the zero time for an empty string.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a valid date: %q", s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
