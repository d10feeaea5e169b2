package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, client *http.Client) http.Header {
	t.Helper()

	var capturedHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		capturedHeaders = r.Header
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	return capturedHeaders
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	headers := capture(t, NewHTTPClient())

	assert.True(t, strings.HasPrefix(headers.Get("User-Agent"), "AgentRelay/"))
	assert.Empty(t, headers.Get("Authorization"))
}

func TestWithBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   string
		wantSet bool
	}{
		{
			name:    "sets header when token is provided",
			token:   "secret",
			wantSet: true,
		},
		{
			name:    "skips header when token is empty",
			token:   "",
			wantSet: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			headers := capture(t, NewHTTPClient(WithBearerToken(tt.token)))
			if tt.wantSet {
				assert.Equal(t, "Bearer "+tt.token, headers.Get("Authorization"))
			} else {
				assert.Empty(t, headers.Get("Authorization"))
			}
		})
	}
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	headers := capture(t, NewHTTPClient(WithHeader("X-Relay-Source", "slack"), WithHeader("X-Empty", "")))

	assert.Equal(t, "slack", headers.Get("X-Relay-Source"))
	assert.NotContains(t, headers, "X-Empty")
}
