package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OracleChecker implements health checking for the relevance oracle's
// HTTP endpoint.
type OracleChecker struct {
	url    string
	client *http.Client
}

// NewOracleChecker creates a new oracle health checker. The url should
// be a cheap unauthenticated endpoint on the oracle host, for example
// its base URL.
func NewOracleChecker(url string) *OracleChecker {
	return &OracleChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck checks that the oracle host is reachable. The engine
// falls back to heuristic scoring when the oracle is down, so callers
// may treat a failure here as degraded rather than unavailable.
func (o *OracleChecker) HealthCheck(ctx context.Context) error {
	if o.url == "" {
		return fmt.Errorf("oracle url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach oracle host: %w", err)
	}
	defer resp.Body.Close()

	// Server errors indicate the host itself is unhealthy. Client
	// errors (401 on the bare base URL, for instance) still prove
	// reachability.
	if resp.StatusCode >= 500 {
		return fmt.Errorf("oracle unhealthy: unexpected status code %d", resp.StatusCode)
	}

	return nil
}
