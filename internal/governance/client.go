package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 8 << 20

// DefaultURL is where ADT Center listens by default.
const DefaultURL = "http://localhost:5001"

// Service is the remote side of a refresh. Each call fetches one slice.
type Service interface {
	Tasks(ctx context.Context) ([]Task, error)
	Specs(ctx context.Context) (SpecSet, error)
	Delegations(ctx context.Context) ([]Delegation, error)
	Events(ctx context.Context) ([]Event, error)
	Requests(ctx context.Context) ([]Request, error)
	DTTPStatus(ctx context.Context) (string, error)
}

// Client talks to ADT Center over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the service at baseURL. Per-call deadlines
// come from the caller's context; timeout is a backstop.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrServiceUnreachable, path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return fmt.Errorf("GET %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Tasks fetches GET /api/tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.get(ctx, "/api/tasks", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Specs fetches GET /api/specs, which returns either a map or a list.
func (c *Client) Specs(ctx context.Context) (SpecSet, error) {
	var resp struct {
		Specs SpecSet `json:"specs"`
	}
	if err := c.get(ctx, "/api/specs", &resp); err != nil {
		return nil, err
	}
	return resp.Specs, nil
}

// Delegations fetches GET /api/governance/delegations.
func (c *Client) Delegations(ctx context.Context) ([]Delegation, error) {
	var resp struct {
		Delegations []Delegation `json:"delegations"`
	}
	if err := c.get(ctx, "/api/governance/delegations", &resp); err != nil {
		return nil, err
	}
	return resp.Delegations, nil
}

// Events fetches GET /api/ads/events, which returns either a bare list or
// an object with an events list.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/ads/events", &raw); err != nil {
		return nil, err
	}
	return decodeEvents(raw)
}

func decodeEvents(raw json.RawMessage) ([]Event, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var events []Event
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return events, nil
	}
	var wrapped struct {
		Events []Event `json:"events"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return wrapped.Events, nil
}

// Requests fetches GET /api/governance/requests.
func (c *Client) Requests(ctx context.Context) ([]Request, error) {
	var resp struct {
		Requests []Request `json:"requests"`
	}
	if err := c.get(ctx, "/api/governance/requests", &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// DTTPStatus fetches GET /dttp/status. A reachable service that omits the
// status is reported as "active".
func (c *Client) DTTPStatus(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/dttp/status", &resp); err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "active", nil
	}
	return resp.Status, nil
}
