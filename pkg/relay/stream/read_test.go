package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ctx context.Context, r io.Reader) ([]Event, error) {
	var events []Event
	err := Read(ctx, r, func(event Event) error {
		events = append(events, event)
		return nil
	})
	return events, err
}

func TestReadOneByteAtATime(t *testing.T) {
	t.Parallel()

	events, err := collect(t.Context(), iotest.OneByteReader(strings.NewReader(sampleStream)))
	require.NoError(t, err)
	assert.Equal(t, decodeAll(sampleStream), events)
}

func TestReadFlushesUnterminatedLastLine(t *testing.T) {
	t.Parallel()

	events, err := collect(t.Context(), strings.NewReader(`data: {"type":"text","text":"end"}`))
	require.NoError(t, err)
	assert.Equal(t, []Event{TextDelta{Text: "end"}}, events)
}

func TestReadReturnsTransportError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader(`data: {"type":"text","text":"partial"}`+"\n"),
		iotest.ErrReader(errBoom),
	)

	events, err := collect(t.Context(), r)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []Event{TextDelta{Text: "partial"}}, events)
}

func TestReadReturnsContextCause(t *testing.T) {
	t.Parallel()

	errStop := errors.New("stopped")
	ctx, cancel := context.WithCancelCause(t.Context())
	cancel(errStop)

	_, err := collect(ctx, strings.NewReader(`data: {"type":"text","text":"x"}`+"\n"))
	require.ErrorIs(t, err, errStop)
}

func TestReadStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	errHandler := errors.New("handler failed")
	calls := 0
	err := Read(t.Context(), strings.NewReader(sampleStream), func(Event) error {
		calls++
		return errHandler
	})

	require.ErrorIs(t, err, errHandler)
	assert.Equal(t, 1, calls)
}
