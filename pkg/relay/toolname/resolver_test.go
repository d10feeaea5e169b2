package toolname

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/agent-relay/pkg/relay/stream"
)

type fakeLister struct {
	tools map[string]string
	err   error
	calls int
}

func (f *fakeLister) ListTools(context.Context, string) (map[string]string, error) {
	f.calls++
	return f.tools, f.err
}

func TestFormatName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref      string
		expected string
	}{
		{ref: "reverse-text", expected: "Reverse Text"},
		{ref: "get_weather", expected: "Get Weather"},
		{ref: "search", expected: "Search"},
		{ref: "_0", expected: "0"},
		{ref: "a--b__c", expected: "A B C"},
		{ref: "fetchURL", expected: "FetchURL"},
		{ref: "élan-vital", expected: "Élan Vital"},
		{ref: "", expected: "Tool"},
		{ref: "-_-", expected: "Tool"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, FormatName(tt.ref))
		})
	}
}

func TestFormatNameProperties(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(nil)

	properties.Property("never empty and free of separators", prop.ForAll(
		func(ref string) bool {
			name := FormatName(ref)
			return name != "" && !strings.ContainsAny(name, "-_")
		},
		gen.AnyString(),
	))
	properties.Property("formatting is idempotent", prop.ForAll(
		func(ref string) bool {
			name := FormatName(ref)
			return FormatName(name) == name
		},
		gen.RegexMatch(`[a-z_\-]{0,24}`),
	))

	properties.TestingRun(t)
}

func TestClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Reverse a string", clip("  Reverse a string\nSecond line", 60))

	long := strings.Repeat("abcdefghij", 10)
	clipped := clip(long, 60)
	assert.Equal(t, 60, uniseg.StringWidth(clipped))
	assert.True(t, strings.HasSuffix(clipped, "…"))

	wide := strings.Repeat("漢", 40)
	assert.LessOrEqual(t, uniseg.StringWidth(clip(wide, 60)), 60)
}

func TestResolvePrefersPrefetchedIDs(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	lister := &fakeLister{tools: map[string]string{"_0": "reverse-text"}}
	require.NoError(t, r.Prefetch(t.Context(), lister, "agent"))

	r.Register(stream.ToolMetadata{Ref: "_0", DisplayID: "something-else"})

	assert.Equal(t, "Reverse Text", r.Resolve("_0"))
}

func TestResolveUsesRegisteredMetadata(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	r.Register(stream.ToolMetadata{Ref: "_0", DisplayID: "get_weather", Description: "Weather lookup"})
	r.Register(stream.ToolMetadata{Ref: "_1", Description: "Reverse a string\nReturns the reversed input"})

	assert.Equal(t, "Get Weather", r.Resolve("_0"))
	assert.Equal(t, "Reverse a string", r.Resolve("_1"))
}

func TestResolveFallsBackToReference(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	r.Register(stream.ToolMetadata{Ref: "_2"})

	assert.Equal(t, "Search Docs", r.Resolve("search-docs"))
	assert.Equal(t, "2", r.Resolve("_2"))
	assert.Equal(t, "Tool", r.Resolve(""))
}

func TestResolverOnlyAddsEntries(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	require.NoError(t, r.Prefetch(t.Context(), &fakeLister{tools: map[string]string{"_0": "first"}}, "agent"))
	require.NoError(t, r.Prefetch(t.Context(), &fakeLister{tools: map[string]string{"_0": "second", "_1": "other"}}, "agent"))

	r.Register(stream.ToolMetadata{Ref: "_5", DisplayID: "one"})
	r.Register(stream.ToolMetadata{Ref: "_5", DisplayID: "two"})

	assert.Equal(t, "First", r.Resolve("_0"))
	assert.Equal(t, "Other", r.Resolve("_1"))
	assert.Equal(t, "One", r.Resolve("_5"))
}

func TestPrefetchFailureLeavesResolverUsable(t *testing.T) {
	t.Parallel()

	errUnavailable := errors.New("agent unavailable")
	r := NewResolver()
	err := r.Prefetch(t.Context(), &fakeLister{err: errUnavailable}, "agent")

	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, "Reverse Text", r.Resolve("reverse-text"))
}

func TestPrefetchSkipsEmptyEntries(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	require.NoError(t, r.Prefetch(t.Context(), &fakeLister{tools: map[string]string{"_0": "", "": "orphan"}}, "agent"))

	assert.Equal(t, "0", r.Resolve("_0"))
}
