//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/adapter/export"
	kafkaadapter "github.com/couchcryptid/snih-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/snih-data-etl/internal/adapter/snih"
	"github.com/couchcryptid/snih-data-etl/internal/config"
	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	"github.com/couchcryptid/snih-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "snih-records-test"

var snihResponses = map[string]string{
	"/Filtros.aspx/LeerEstaciones": `{"d":[
		{"__type":"SNIH.Estacion","Codigo":1001,"Descripcion":"Río Bermejo en Pozo Sarmiento","Cota":-999,
		 "Latitud":-27.0,"Longitud":-64.0,"Habilitada":true,"ModoDeLlegar":"Ruta 34","Alta":"/Date(1703185987000)/"}]}`,
	"/MuestraDatos.aspx/LeerCodigosMedicion": `{"d":[
		{"Codigo":5,"Descripcion":"Altura hidrométrica","Abreviatura":"H","Unidad":"m","Decimales":2}]}`,
	"/MuestraDatos.aspx/LeerListaAsociaciones": `{"d":[{"Estacion":1001,"Codigo":5,"Desde":"/Date(1703185987000)/","Hasta":""}]}`,
	"/MuestraDatos.aspx/LeerDatosActuales": `{"d":{"Mediciones":[
		{"Codigo":5,"FechaHora":"/Date(1703185987000)/","NombreCodigo":"Altura hidrométrica","Valor":1.25},
		{"Codigo":5,"FechaHora":"/Date(1703189587000)/","NombreCodigo":"Altura hidrométrica","Valor":-999}]}}`,
}

// newSNIHStub serves canned responses and rejects anything but POST.
func newSNIHStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, ok := snihResponses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, body) //nolint:errcheck // test stub
	}))
	t.Cleanup(srv.Close)
	return srv
}

type publishedMessage struct {
	Key     string
	Headers map[string]string
	Body    map[string]any
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from publish topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body), "unmarshal published message")
	return publishedMessage{Key: string(msg.Key), Headers: headers, Body: body}
}

// TestExportAndPublish drives a present-values export end to end: SNIH stub
// over HTTP, normalization, CSV file on disk and documents on Kafka.
func TestExportAndPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	stub := newSNIHStub(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic, BatchSize: 10}

	publisher := kafkaadapter.NewPublisher(cfg, metrics, logger)
	defer publisher.Close()

	client := snih.NewClient(stub.URL, 10*time.Second, metrics, logger)
	harvester := pipeline.NewHarvester(client, false, clock, metrics, logger)
	facility := pipeline.NewFacilityBuilder(domain.FacilityConfig{Region: "South America", Territory: "Argentina", FacilitySet: "SNIH"}, metrics, logger)
	exporter := pipeline.NewExporter(harvester, facility, export.NewFileSink(logger), publisher, clock, metrics, logger)

	out := filepath.Join(t.TempDir(), "present.csv")
	station := int64(1001)
	res, err := exporter.Run(ctx, pipeline.Request{
		Dataset: pipeline.DatasetPresentValues,
		Output:  out,
		Format:  domain.FormatCSV,
		Station: &station,
		Publish: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.Published)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Codigo,FechaHora,NombreCodigo,Valor", lines[0])
	assert.True(t, strings.HasSuffix(lines[2], ","), "sentinel reading is an empty cell")

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("snih-test-%d", time.Now().UnixNano()),
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	first := readPublished(ctx, t, consumer)
	assert.Equal(t, "1001", first.Key)
	assert.Equal(t, "present-values", first.Headers["dataset"])
	assert.Equal(t, res.RunID, first.Headers["run_id"])
	assert.Equal(t, "2023-12-21T19:13:07Z", first.Body["FechaHora"])
	assert.InDelta(t, 1.25, first.Body["Valor"], 0)

	second := readPublished(ctx, t, consumer)
	assert.Nil(t, second.Body["Valor"])
}

// TestFacilityPublish synthesizes a facility from the stub catalog and
// publishes it as a single document keyed by the station identifier.
func TestFacilityPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	topic := testTopic + "-facility"
	createTopic(t, broker, topic)
	stub := newSNIHStub(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: topic, BatchSize: 10}

	publisher := kafkaadapter.NewPublisher(cfg, metrics, logger)
	defer publisher.Close()

	client := snih.NewClient(stub.URL, 10*time.Second, metrics, logger)
	harvester := pipeline.NewHarvester(client, false, clockwork.NewRealClock(), metrics, logger)
	facility := pipeline.NewFacilityBuilder(domain.FacilityConfig{Region: "South America", Territory: "Argentina", FacilitySet: "SNIH"}, metrics, logger)
	exporter := pipeline.NewExporter(harvester, facility, export.NewFileSink(logger), publisher, clockwork.NewRealClock(), metrics, logger)

	out := filepath.Join(t.TempDir(), "facility.json")
	_, rec, err := exporter.Facility(ctx, pipeline.FacilityRequest{Station: 1001, Output: out, Publish: true})
	require.NoError(t, err)
	assert.Equal(t, "-64.000000 -27.000000", rec.Position)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("snih-facility-%d", time.Now().UnixNano()),
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	msg := readPublished(ctx, t, consumer)
	assert.Equal(t, "1001", msg.Key)
	assert.Equal(t, "facility", msg.Headers["dataset"])
	assert.Equal(t, "operational", msg.Body["operatingStatus"])
	assert.Equal(t, "Río Bermejo en Pozo Sarmiento", msg.Body["name"])
}
