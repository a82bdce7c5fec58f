// Package cex implements REST market-data sources.
package cex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/StrathCole/pyth-publisher/pkg/sources"
	"github.com/StrathCole/pyth-publisher/pkg/version"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 4 << 20
)

// restClient issues rate-limited GET requests against one API.
type restClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	keyHeader string
	apiKey    string
}

func newRESTClient(minInterval time.Duration, keyHeader, apiKey string) *restClient {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &restClient{
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		limiter:   rate.NewLimiter(limit, 1),
		keyHeader: keyHeader,
		apiKey:    apiKey,
	}
}

func (c *restClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	requestURL := endpoint
	if len(params) > 0 {
		requestURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())
	req.Header.Set(c.keyHeader, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w (status 429)", sources.ErrRateLimitExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", sources.ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
