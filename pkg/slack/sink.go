// Package slack connects the relay to Slack: it receives Events API
// callbacks and shows relay progress as a threaded bot message.
package slack

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	slackapi "github.com/slack-go/slack"

	"github.com/docker/agent-relay/pkg/relay"
)

// MaxMessageLength is the number of characters kept from a message. Slack
// truncates longer texts without a marker.
const MaxMessageLength = 39000

// Poster is the part of the Slack Web API the sink needs.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
}

// Sink writes relay output to one Slack thread.
type Sink struct {
	client   Poster
	channel  string
	threadTS string
}

var _ relay.Sink = (*Sink)(nil)

// NewSink returns a sink posting in channel. When threadTS is not empty the
// message is a reply in that thread.
func NewSink(client Poster, channel, threadTS string) *Sink {
	return &Sink{
		client:   client,
		channel:  channel,
		threadTS: threadTS,
	}
}

func (s *Sink) Create(ctx context.Context, text string) (relay.Handle, error) {
	options := []slackapi.MsgOption{s.text(text)}
	if s.threadTS != "" {
		options = append(options, slackapi.MsgOptionTS(s.threadTS))
	}

	_, ts, err := s.client.PostMessageContext(ctx, s.channel, options...)
	if err != nil {
		return "", fmt.Errorf("posting message in %s: %w", s.channel, err)
	}
	return relay.Handle(ts), nil
}

func (s *Sink) Update(ctx context.Context, handle relay.Handle, text string) error {
	if _, _, _, err := s.client.UpdateMessageContext(ctx, s.channel, string(handle), s.text(text)); err != nil {
		return fmt.Errorf("updating message %s in %s: %w", handle, s.channel, err)
	}
	return nil
}

func (s *Sink) text(text string) slackapi.MsgOption {
	return slackapi.MsgOptionText(Truncate(ToMrkdwn(text), MaxMessageLength), false)
}

// Truncate shortens s to at most limit characters, cutting between
// grapheme clusters and marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	var b strings.Builder
	kept := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		n := len(g.Runes())
		if kept+n > limit-1 {
			break
		}
		b.WriteString(g.Str())
		kept += n
	}
	return b.String() + "…"
}
