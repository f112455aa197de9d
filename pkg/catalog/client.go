// Package catalog provides a client for the remote product catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/logging"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
)

// DefaultTimeout is the maximum time to wait for the catalog response.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBodyBytes caps the size of an accepted response body.
const DefaultMaxBodyBytes = 32 << 20

// Fetcher retrieves the full product collection from a source endpoint.
type Fetcher interface {
	FetchProducts(ctx context.Context, url string) ([]models.Product, error)
}

// Client fetches products over HTTP. It issues exactly one request per call
// and never retries.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
	logger       *zap.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a catalog client from source configuration.
func NewClient(cfg config.SourceConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: maxBody,
		logger:       logger.Named("catalog"),
	}
}

// FetchProducts performs a single GET against url and decodes a JSON array of
// product objects. Any transport failure, non-2xx status or undecodable body
// is returned as *apperrors.RetrievalError.
func (c *Client) FetchProducts(ctx context.Context, url string) ([]models.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperrors.RetrievalError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Info("Fetching products", zap.String("url", url))
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.RetrievalError{URL: url, Err: fmt.Errorf("failed to call catalog: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, &apperrors.RetrievalError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Catalog returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.TruncateString(string(body), logging.MaxBodyLogLength)))
		return nil, &apperrors.RetrievalError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if int64(len(body)) > c.maxBodyBytes {
		return nil, &apperrors.RetrievalError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", c.maxBodyBytes)}
	}

	var products []models.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, &apperrors.RetrievalError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if products == nil {
		return nil, &apperrors.RetrievalError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("response is not a JSON array")}
	}

	c.logger.Info("Fetched products",
		zap.Int("count", len(products)),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	return products, nil
}
