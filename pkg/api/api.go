// Package api is the stateless request/response client for the simulation
// server's REST surface. It carries no derived state of its own; responses
// are cached by the caller (pkg/cache) under the same scopes the sync engine
// invalidates.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when the API responds with HTTP 429 (Too Many
// Requests). It carries an optional RetryAfter duration parsed from the
// Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ParseRetryAfter parses the Retry-After header value as either seconds
// (integer) or an HTTP-date (RFC 7231). Returns zero if unparseable or if
// the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
		return 0
	}
	return 0
}

// Auth holds authentication settings for the server API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// Client calls the simulation server's REST API. A nil HTTPClient falls
// back to a cached default with a 30-second timeout.
type Client struct {
	BaseURL    string            // API base URL (no trailing slash).
	Auth       Auth              // Authentication settings.
	HTTPClient *http.Client      // Optional HTTP client.
	Headers    map[string]string // Extra headers applied to every request.

	clientOnce    sync.Once
	defaultClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	c.clientOnce.Do(func() {
		c.defaultClient = &http.Client{Timeout: 30 * time.Second}
	})

	return c.defaultClient
}

// NewRequest builds an *http.Request with the base URL, auth, and custom
// headers already applied.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.Auth.Key != "" {
		header := c.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := c.Auth.Key
		if header == "Authorization" {
			scheme := c.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			value = scheme + " " + value
		} else if c.Auth.Scheme != "" {
			value = c.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// do sends the request, checks for a 2xx status, and unmarshals the
// response body into dest. A nil dest discards the body after the status
// check.
func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("api: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return &RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(respBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}

	return nil
}

// getJSON sends a GET and unmarshals the response into dest.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	return c.do(req, dest)
}

// postJSON marshals payload, sends a POST, and unmarshals the response into
// dest (nil dest discards it).
func (c *Client) postJSON(ctx context.Context, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("api: marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

// --- Resources ---

// Simulation is a server-side simulation summary.
type Simulation struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	AgentCount  int       `json:"agent_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// AgentSpec configures one agent of a new simulation.
type AgentSpec struct {
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	Model        string `json:"model,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// CreateSimulationRequest is the payload for CreateSimulation.
type CreateSimulationRequest struct {
	Name       string      `json:"name"`
	TotalSteps int         `json:"total_steps,omitempty"`
	Agents     []AgentSpec `json:"agents,omitempty"`
}

// Message is one persisted simulation message row.
type Message struct {
	ID           string    `json:"id"`
	SimulationID string    `json:"simulation_id"`
	SenderID     string    `json:"sender_id"`
	ReceiverID   string    `json:"receiver_id"`
	Content      string    `json:"content"`
	Step         int       `json:"step"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListSimulations returns all simulations.
func (c *Client) ListSimulations(ctx context.Context) ([]Simulation, error) {
	var sims []Simulation
	if err := c.getJSON(ctx, "/api/simulations", &sims); err != nil {
		return nil, err
	}
	return sims, nil
}

// GetSimulation returns one simulation summary.
func (c *Client) GetSimulation(ctx context.Context, id string) (Simulation, error) {
	var sim Simulation
	if err := c.getJSON(ctx, "/api/simulations/"+url.PathEscape(id), &sim); err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

// CreateSimulation creates a new simulation and returns its summary.
func (c *Client) CreateSimulation(ctx context.Context, req CreateSimulationRequest) (Simulation, error) {
	var sim Simulation
	if err := c.postJSON(ctx, "/api/simulations", req, &sim); err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

// Control actions accepted by the server.
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
)

// Control starts, pauses, or resumes a simulation.
func (c *Client) Control(ctx context.Context, id, action string) error {
	switch action {
	case ActionStart, ActionPause, ActionResume:
	default:
		return fmt.Errorf("api: unknown control action %q", action)
	}
	return c.postJSON(ctx, "/api/simulations/"+url.PathEscape(id)+"/"+action, nil, nil)
}

// Messages returns one page of a simulation's persisted messages.
func (c *Client) Messages(ctx context.Context, id string, limit, offset int) ([]Message, error) {
	path := fmt.Sprintf("/api/simulations/%s/messages?limit=%d&offset=%d",
		url.PathEscape(id), limit, offset)

	var msgs []Message
	if err := c.getJSON(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
