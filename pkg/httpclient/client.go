package httpclient

import (
	"net/http"

	"github.com/docker/agent-relay/pkg/useragent"
)

type transport struct {
	userAgent string
	headers   http.Header
	rt        http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	r2.Header.Set("User-Agent", t.userAgent)
	for key, values := range t.headers {
		r2.Header[key] = values
	}
	return t.rt.RoundTrip(r2)
}

type Opt func(*transport)

// WithHeader adds a header to every request. Empty values are ignored.
func WithHeader(key, value string) Opt {
	return func(t *transport) {
		if value != "" {
			t.headers.Set(key, value)
		}
	}
}

// WithBearerToken authenticates every request with token, if not empty.
func WithBearerToken(token string) Opt {
	return func(t *transport) {
		if token != "" {
			t.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Opt {
	return func(t *transport) {
		t.rt = rt
	}
}

// NewHTTPClient returns a client without an overall timeout, suitable for
// long-lived streaming responses; callers bound requests with contexts.
func NewHTTPClient(opts ...Opt) *http.Client {
	t := &transport{
		userAgent: useragent.Header,
		headers:   http.Header{},
		rt:        http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(t)
	}
	return &http.Client{Transport: t}
}
