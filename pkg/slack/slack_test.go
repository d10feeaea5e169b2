package slack

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/require"
)

// apiCall is one request received by fakeSlack.
type apiCall struct {
	Method string
	Form   url.Values
}

// fakeSlack serves the chat.postMessage and chat.update Web API methods.
type fakeSlack struct {
	mu    sync.Mutex
	calls []apiCall
	fail  string
	next  int
}

func newFakeSlack(t *testing.T) (*fakeSlack, *slackapi.Client) {
	t.Helper()

	f := &fakeSlack{}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	return f, slackapi.New("xoxb-test", slackapi.OptionAPIURL(srv.URL+"/"))
}

func (f *fakeSlack) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	method := r.URL.Path[1:]
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})

	w.Header().Set("Content-Type", "application/json")
	if f.fail != "" {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": f.fail})
		return
	}

	ts := r.PostForm.Get("ts")
	if method == "chat.postMessage" {
		f.next++
		ts = "1700000000.00000" + strconv.Itoa(f.next)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"channel": r.PostForm.Get("channel"),
		"ts":      ts,
		"text":    r.PostForm.Get("text"),
	})
}

func (f *fakeSlack) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func (f *fakeSlack) failWith(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = code
}

func requireCall(t *testing.T, call apiCall, method string, fields map[string]string) {
	t.Helper()

	require.Equal(t, method, call.Method)
	for key, value := range fields {
		require.Equal(t, value, call.Form.Get(key), "form field %s", key)
	}
}
