package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalSinkLive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, true)

	handle, err := sink.Create(t.Context(), "⠋ Thinking...")
	require.NoError(t, err)
	require.NoError(t, sink.Update(t.Context(), handle, "⠙ Using Get Weather..."))
	require.NoError(t, sink.Update(t.Context(), handle, "It is sunny.\nHigh of 24°C."))
	sink.Flush()

	assert.Equal(t, clearLine+"⠋ Thinking..."+
		clearLine+"⠙ Using Get Weather..."+
		clearLine+"It is sunny."+
		clearLine+"It is sunny.\nHigh of 24°C.\n", buf.String())
}

func TestTerminalSinkNotLive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewTerminalSink(&buf, false)

	handle, err := sink.Create(t.Context(), "⠋ Thinking...")
	require.NoError(t, err)
	require.NoError(t, sink.Update(t.Context(), handle, "Done."))
	assert.Empty(t, buf.String())

	sink.Flush()
	assert.Equal(t, "Done.\n", buf.String())
	assert.Equal(t, "Done.", sink.Last())
}

func TestTerminalSinkErrors(t *testing.T) {
	t.Parallel()

	sink := NewTerminalSink(&bytes.Buffer{}, false)

	require.Error(t, sink.Update(t.Context(), "other", "text"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := sink.Create(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
