package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"PulseJoin/internal/metrics"
	"PulseJoin/internal/models"
)

const maxBodyBytes = 64 << 10

// Result is the raw answer of one gateway call. Err is set only for
// transport failures; HTTP error statuses are reported via StatusCode.
type Result struct {
	StatusCode int
	Body       string
	Err        error
	Duration   time.Duration
}

type Request struct {
	Instance models.Instance
	GroupID  string
	Phone    string
}

type participantsBody struct {
	Action       string   `json:"action"`
	Participants []string `json:"participants"`
}

// Client performs single add-participant calls. It never retries.
type Client struct {
	BaseURL      string
	APIKeyHeader string
	HTTP         *http.Client

	// Limiter caps the process-wide request rate; nil means unlimited.
	Limiter *rate.Limiter
}

func NewClient(baseURL, apiKeyHeader string, timeout time.Duration, ratePerSec float64) *Client {
	c := &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKeyHeader: apiKeyHeader,
		HTTP:         &http.Client{Timeout: timeout},
	}
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return c
}

func (c *Client) endpoint(req Request) string {
	base := c.BaseURL
	if req.Instance.BaseURL != "" {
		base = strings.TrimRight(req.Instance.BaseURL, "/")
	}
	return fmt.Sprintf("%s/group/updateParticipant/%s?groupJid=%s",
		base, url.PathEscape(req.Instance.Name), url.QueryEscape(req.GroupID))
}

func (c *Client) AddParticipant(ctx context.Context, req Request) Result {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return Result{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	payload, err := json.Marshal(participantsBody{
		Action:       "add",
		Participants: []string{req.Phone},
	})
	if err != nil {
		return Result{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req), bytes.NewReader(payload))
	if err != nil {
		return Result{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	header := c.APIKeyHeader
	if header == "" {
		header = "apikey"
	}
	httpReq.Header.Set(header, req.Instance.APIKey)

	start := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	elapsed := time.Since(start)
	metrics.GatewayLatency.Observe(elapsed.Seconds())
	if err != nil {
		return Result{Err: err, Duration: elapsed}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err), Duration: elapsed}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Duration:   elapsed,
	}
}
