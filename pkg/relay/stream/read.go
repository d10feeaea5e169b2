package stream

import (
	"context"
	"errors"
	"io"
)

const readBufferSize = 32 * 1024

// Read decodes r until it is exhausted, calling fn for every event in order.
// The end of r (io.EOF) is the normal end of the stream and returns nil.
// Any other read error is returned; when ctx is done its cause is returned
// instead, since a cancelled request usually surfaces as an opaque read error.
func Read(ctx context.Context, r io.Reader, fn func(Event) error) error {
	dec := NewDecoder()
	buf := make([]byte, readBufferSize)

	for {
		if err := context.Cause(ctx); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, event := range dec.Decode(buf[:n]) {
				if err := fn(event); err != nil {
					return err
				}
			}
		}

		switch {
		case errors.Is(err, io.EOF):
			for _, event := range dec.Flush() {
				if err := fn(event); err != nil {
					return err
				}
			}
			return nil
		case err != nil:
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return err
		}
	}
}
