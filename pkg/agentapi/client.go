// Package agentapi is a client for the HTTP agent server the relay talks to.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/docker/agent-relay/pkg/httpclient"
)

// Client is an HTTP client for the agent server API
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	toolCache  *cache.Cache
}

// ClientOption is a function for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAPIKey authenticates requests with a bearer token
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithToolCacheTTL caches the tools of each agent for ttl. Zero disables
// caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl <= 0 {
			c.toolCache = nil
			return
		}
		c.toolCache = cache.New(ttl, 2*ttl)
	}
}

// NewClient creates a new client for the agent server at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	client := &Client{
		baseURL:    parsedURL,
		httpClient: httpclient.NewHTTPClient(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Message is one chat message sent to an agent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is the body of a streaming agent invocation.
type StreamRequest struct {
	Messages   []Message `json:"messages"`
	ThreadID   string    `json:"threadId,omitempty"`
	ResourceID string    `json:"resourceId,omitempty"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the agent server answers with an error status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Agent is the description of an agent, as returned by the server.
type Agent struct {
	Name         string          `json:"name"`
	Instructions string          `json:"instructions,omitempty"`
	Tools        json.RawMessage `json:"tools,omitempty"`
}

type toolEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (t toolEntry) stableID() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Name
}

// ToolIDs maps the tool references used in agent streams to stable tool ids.
// The server lists tools either as an object keyed by reference or as an
// array, where the tool at index i is referenced as "_i".
func (a *Agent) ToolIDs() (map[string]string, error) {
	ids := make(map[string]string)
	raw := bytes.TrimSpace(a.Tools)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ids, nil
	}

	if raw[0] == '[' {
		var entries []toolEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decoding tool list: %w", err)
		}
		for i, entry := range entries {
			if id := entry.stableID(); id != "" {
				ids["_"+strconv.Itoa(i)] = id
			}
		}
		return ids, nil
	}

	var entries map[string]toolEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding tool map: %w", err)
	}
	for ref, entry := range entries {
		if id := entry.stableID(); id != "" {
			ids[ref] = id
		}
	}
	return ids, nil
}

func (c *Client) endpoint(elem ...string) string {
	return c.baseURL.JoinPath(elem...).String()
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// GetAgent returns the description of an agent
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("api", "agents", agentID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var agent Agent
	if err := json.NewDecoder(resp.Body).Decode(&agent); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return &agent, nil
}

// ListTools returns the agent's tools, keyed by stream reference.
func (c *Client) ListTools(ctx context.Context, agentID string) (map[string]string, error) {
	if c.toolCache != nil {
		if cached, ok := c.toolCache.Get(agentID); ok {
			return cached.(map[string]string), nil
		}
	}

	agent, err := c.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	ids, err := agent.ToolIDs()
	if err != nil {
		return nil, err
	}

	if c.toolCache != nil {
		c.toolCache.Set(agentID, ids, cache.DefaultExpiration)
	}
	return ids, nil
}

// ListAgents returns the ids of the agents served, sorted.
func (c *Client) ListAgents(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("api", "agents"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var agents map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	return slices.Sorted(maps.Keys(agents)), nil
}

// Stream starts an agent invocation and returns the raw event stream. The
// caller must close it.
func (c *Client) Stream(ctx context.Context, agentID string, streamReq StreamRequest) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("api", "agents", agentID, "stream"), streamReq)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading error response body: %w", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}
