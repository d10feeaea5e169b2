package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

const (
	// marker prefixes every event-bearing line.
	marker = "data:"
	// sentinel is sent by some agent servers after the last frame. It carries
	// no event and does not end the stream: only the transport does.
	sentinel = "[DONE]"
)

// Decoder turns a newline-delimited stream of "data:" frames into events.
// Chunks may end anywhere, including in the middle of a line or of a
// multi-byte character; the trailing partial line is kept until the next
// call to Decode or Flush.
//
// A Decoder is meant to be used for a single stream.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode appends chunk to the pending input and returns the events of every
// complete line.
func (d *Decoder) Decode(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		events = append(events, decodeLine(d.buf[:i])...)
		d.buf = d.buf[i+1:]
	}

	if len(d.buf) == 0 {
		d.buf = nil
	} else {
		d.buf = bytes.Clone(d.buf)
	}

	return events
}

// Flush decodes whatever is left in the buffer as a final line. It must be
// called once the transport reported the end of the stream.
func (d *Decoder) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	return decodeLine(line)
}

func decodeLine(line []byte) []Event {
	line = bytes.TrimSuffix(line, []byte("\r"))

	data, ok := bytes.CutPrefix(line, []byte(marker))
	if !ok {
		// Blank separators, ":" comments and other SSE fields.
		return nil
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == sentinel {
		return nil
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Debug("Skipping malformed stream frame", "error", err)
		return nil
	}

	return f.events()
}

// frame is the JSON payload of one "data:" line.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Text    json.RawMessage `json:"text"`
	Content json.RawMessage `json:"content"`
	// Some servers put the tool name next to the type instead of in the payload.
	ToolName json.RawMessage `json:"toolName"`
}

type framePayload struct {
	Text     json.RawMessage `json:"text"`
	ToolName json.RawMessage `json:"toolName"`
	Request  struct {
		Body json.RawMessage `json:"body"`
	} `json:"request"`
}

// toolSpec is one entry of the tools declared in a step's request body. Both
// the flat {name, description} form and the OpenAI {function: {...}} form are
// accepted.
type toolSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Function    *struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"function"`
}

func (f *frame) events() []Event {
	switch f.Type {
	case "text-delta", "text", "content":
		if text := f.text(); text != "" {
			return []Event{TextDelta{Text: text}}
		}
		return []Event{Unknown{Type: f.Type}}
	case "tool-call", "tool_call_start", "tool-call-start":
		return []Event{ToolCallStart{Ref: f.toolName()}}
	case "tool-call-end", "tool-result":
		return []Event{ToolCallEnd{}}
	case "step-start":
		return f.toolMetadata()
	default:
		return []Event{Unknown{Type: f.Type}}
	}
}

func (f *frame) payload() framePayload {
	var p framePayload
	if len(f.Payload) > 0 {
		// Fields that do not fit are left empty.
		_ = json.Unmarshal(f.Payload, &p)
	}
	return p
}

// text returns the first non-empty of payload.text, text and content.
func (f *frame) text() string {
	for _, raw := range []json.RawMessage{f.payload().Text, f.Text, f.Content} {
		if s := stringValue(raw); s != "" {
			return s
		}
	}
	return ""
}

func (f *frame) toolName() string {
	if name := stringValue(f.payload().ToolName); name != "" {
		return name
	}
	return stringValue(f.ToolName)
}

func (f *frame) toolMetadata() []Event {
	var events []Event
	for _, spec := range decodeToolSpecs(f.payload().Request.Body) {
		name, description := spec.Name, spec.Description
		if spec.Function != nil {
			if name == "" {
				name = spec.Function.Name
			}
			if description == "" {
				description = spec.Function.Description
			}
		}
		if name == "" {
			continue
		}
		events = append(events, ToolMetadata{
			Ref:         name,
			DisplayID:   spec.ID,
			Description: description,
		})
	}
	return events
}

// decodeToolSpecs reads the tools of a request body, which is either an
// object or a JSON document encoded as a string.
func decodeToolSpecs(body json.RawMessage) []toolSpec {
	if s := stringValue(body); s != "" {
		body = json.RawMessage(s)
	}
	if len(body) == 0 {
		return nil
	}

	var b struct {
		Tools []toolSpec `json:"tools"`
	}
	if err := json.Unmarshal(body, &b); err != nil {
		slog.Debug("Skipping undecodable step tools", "error", err)
		return nil
	}
	return b.Tools
}

// stringValue returns raw as a string if it holds a JSON string.
func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
