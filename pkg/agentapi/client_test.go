package agentapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("://missing-scheme")
	require.Error(t, err)

	_, err = NewClient("ftp://agents.local")
	require.Error(t, err)
}

func TestStream(t *testing.T) {
	t.Parallel()

	var got StreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/base/api/agents/weather/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"text\",\"text\":\"hi\"}\n")
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/base", WithAPIKey("key-1"))
	require.NoError(t, err)

	body, err := client.Stream(t.Context(), "weather", StreamRequest{
		Messages: []Message{{Role: "user", Content: "forecast?"}},
		ThreadID: "C1:1.2",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"text\",\"text\":\"hi\"}\n", string(data))
	assert.Equal(t, StreamRequest{
		Messages: []Message{{Role: "user", Content: "forecast?"}},
		ThreadID: "C1:1.2",
	}, got)
}

func TestStreamErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{
			name:     "json error message",
			status:   http.StatusNotFound,
			body:     `{"error":"agent not found"}`,
			expected: "API error (404): agent not found",
		},
		{
			name:     "plain body",
			status:   http.StatusBadGateway,
			body:     "upstream unavailable\n",
			expected: "API error (502): upstream unavailable",
		},
		{
			name:     "empty body",
			status:   http.StatusInternalServerError,
			expected: "HTTP error 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client, err := NewClient(srv.URL)
			require.NoError(t, err)

			_, err = client.Stream(t.Context(), "missing", StreamRequest{})
			require.EqualError(t, err, tt.expected)

			statusErr, ok := errors.AsType[*StatusError](err)
			require.True(t, ok)
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestToolIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tools    string
		expected map[string]string
	}{
		{
			name:     "object keyed by reference",
			tools:    `{"_0":{"id":"reverse-text","description":"Reverse"},"_1":{"name":"get_weather"}}`,
			expected: map[string]string{"_0": "reverse-text", "_1": "get_weather"},
		},
		{
			name:     "array",
			tools:    `[{"id":"reverse-text"},{"description":"anonymous"},{"name":"search"}]`,
			expected: map[string]string{"_0": "reverse-text", "_2": "search"},
		},
		{
			name:     "missing",
			tools:    ``,
			expected: map[string]string{},
		},
		{
			name:     "null",
			tools:    `null`,
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			agent := Agent{Tools: json.RawMessage(tt.tools)}
			ids, err := agent.ToolIDs()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestToolIDsInvalid(t *testing.T) {
	t.Parallel()

	agent := Agent{Tools: json.RawMessage(`"not tools"`)}
	_, err := agent.ToolIDs()
	require.Error(t, err)
}

func TestListToolsIsCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/agents/weather", r.URL.Path)
		_, _ = io.WriteString(w, `{"name":"Weather","tools":{"_0":{"id":"get-forecast"}}}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithToolCacheTTL(time.Minute))
	require.NoError(t, err)

	for range 3 {
		tools, err := client.ListTools(t.Context(), "weather")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"_0": "get-forecast"}, tools)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestListToolsWithoutCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"tools":[]}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	for range 2 {
		_, err := client.ListTools(t.Context(), "weather")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestListAgents(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agents", r.URL.Path)
		_, _ = io.WriteString(w, `{"weather":{"name":"Weather"},"calendar":{"name":"Calendar"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	agents, err := client.ListAgents(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"calendar", "weather"}, agents)
}
