// Package snih talks to the SNIH ASP.NET page methods.
package snih

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
)

// DefaultBaseURL is the public SNIH site.
const DefaultBaseURL = "https://snih.hidricosargentina.gob.ar/"

const (
	acceptHeader      = "application/json, text/javascript, */*; q=0.01"
	contentTypeHeader = "application/json; charset=utf-8"

	// maxErrorBody bounds how much of a failed response ends up in the error.
	maxErrorBody = 2048
)

// Client implements domain.Transport over HTTP POST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a SNIH client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch POSTs body (JSON encoded, or nothing when nil) to endpoint and
// returns the response document once it is known to be valid JSON.
func (c *Client) Fetch(ctx context.Context, endpoint string, body any) ([]byte, error) {
	start := time.Now()
	data, err := c.doRequest(ctx, endpoint, body)
	c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.logger.Warn("snih request failed", "endpoint", endpoint, "error", err)
		return nil, err
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	c.logger.Debug("snih request", "endpoint", endpoint, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", contentTypeHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "read body: " + err.Error(),
			Err:        err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(data), maxErrorBody),
		}
	}

	if !json.Valid(data) {
		return nil, &domain.TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "response is not valid JSON",
			Err:        errInvalidJSON,
		}
	}
	return data, nil
}

var errInvalidJSON = errors.New("invalid JSON response")

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
