/**
 * @description
 * This package provides a minimal client for the external monitoring sink.
 * After every batch run the orchestrator pings a heartbeat URL with the job
 * name so a missed or failed run raises an alert. Pings are best-effort.
 */
package heartbeat

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client pings a heartbeat/monitoring endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new heartbeat client. An empty baseURL disables pings.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Success signals a completed batch run for the named job.
func (c *Client) Success(ctx context.Context, jobName string) {
	c.ping(ctx, jobName, "success")
}

// Failure signals a failed batch run for the named job.
func (c *Client) Failure(ctx context.Context, jobName string) {
	c.ping(ctx, jobName, "fail")
}

func (c *Client) ping(ctx context.Context, jobName, status string) {
	if c.BaseURL == "" {
		return
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, url.PathEscape(jobName), status)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Printf("level=warn component=heartbeat job=%s msg=\"failed to build ping request\" err=%v", jobName, err)
		return
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=heartbeat job=%s status=%s msg=\"ping failed\" err=%v", jobName, status, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=heartbeat job=%s status=%s msg=\"ping rejected\" http_status=%d", jobName, status, resp.StatusCode)
	}
}
