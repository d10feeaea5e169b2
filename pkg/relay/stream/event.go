package stream

// Event is a single decoded frame of an agent stream. The set of variants is
// closed: anything the decoder does not understand becomes Unknown.
type Event interface {
	isEvent()
}

// TextDelta carries an appendable chunk of response text.
type TextDelta struct {
	Text string
}

// ToolCallStart is sent when the agent starts invoking a tool. Ref is the
// invocation-scoped tool reference, e.g. "_0".
type ToolCallStart struct {
	Ref string
}

// ToolCallEnd is sent when the running tool call finished.
type ToolCallEnd struct{}

// ToolMetadata describes a tool the agent declared for the current step.
type ToolMetadata struct {
	Ref         string
	DisplayID   string
	Description string
}

// Unknown is any frame with a type the relay does not handle.
type Unknown struct {
	Type string
}

func (TextDelta) isEvent()     {}
func (ToolCallStart) isEvent() {}
func (ToolCallEnd) isEvent()   {}
func (ToolMetadata) isEvent()  {}
func (Unknown) isEvent()       {}
