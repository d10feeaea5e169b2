package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

var (
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

// leadingMentions matches the user mentions a message starts with.
var leadingMentions = regexp.MustCompile(`^(\s*<@[A-Z0-9]+(\|[^>]*)?>)+`)

// Mention is a message addressed to the bot, either by mentioning it in a
// channel or by writing to it directly.
type Mention struct {
	EventID  string
	TeamID   string
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string
	Direct   bool
}

// ReplyTS is the thread the answer belongs to. Channel mentions are always
// answered in a thread; direct messages only when they were sent in one.
func (m Mention) ReplyTS() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	if m.Direct {
		return ""
	}
	return m.TS
}

// ThreadKey identifies the conversation with the agent, so that follow-up
// messages in a Slack thread share the agent's memory.
func (m Mention) ThreadKey() string {
	if ts := m.ReplyTS(); ts != "" {
		return m.Channel + ":" + ts
	}
	return m.Channel
}

// EventHandler verifies and decodes Events API requests and dispatches the
// mentions they carry.
type EventHandler struct {
	signingSecret string
	botUserID     string
	seen          *cache.Cache
	dispatch      func(Mention)
}

type EventHandlerOpt func(*EventHandler)

// WithBotUserID ignores messages written by the bot itself.
func WithBotUserID(id string) EventHandlerOpt {
	return func(h *EventHandler) {
		h.botUserID = id
	}
}

// WithDedupWindow sets for how long a delivered event id is remembered.
func WithDedupWindow(d time.Duration) EventHandlerOpt {
	return func(h *EventHandler) {
		if d > 0 {
			h.seen = cache.New(d, 2*d)
		}
	}
}

// NewEventHandler returns a handler calling dispatch for every new mention.
// dispatch must not block: Slack expects an answer within three seconds.
func NewEventHandler(signingSecret string, dispatch func(Mention), opts ...EventHandlerOpt) *EventHandler {
	h := &EventHandler{
		signingSecret: signingSecret,
		seen:          cache.New(10*time.Minute, 20*time.Minute),
		dispatch:      dispatch,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one request. It returns the challenge to echo back for
// URL verification requests, and an empty string otherwise.
func (h *EventHandler) Handle(header http.Header, body []byte) (string, error) {
	if err := h.verify(header, body); err != nil {
		return "", err
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Callbacks for inner events slack-go does not know are acked, or
		// Slack keeps retrying them.
		if inner, ok := callbackType(body); ok {
			slog.Debug("Ignoring unsupported Slack event", "type", inner, "error", err)
			return "", nil
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return challenge.Challenge, nil
	case slackevents.CallbackEvent:
		if retry := header.Get("X-Slack-Retry-Num"); retry != "" {
			slog.Debug("Ignoring Slack retry", "retry", retry, "reason", header.Get("X-Slack-Retry-Reason"))
			return "", nil
		}
		h.callback(event)
	default:
		slog.Debug("Ignoring Slack event", "type", event.Type)
	}
	return "", nil
}

// callbackType returns the inner event type of a well-formed event callback.
func callbackType(body []byte) (string, bool) {
	var envelope struct {
		Type  string `json:"type"`
		Event struct {
			Type string `json:"type"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	if envelope.Type != slackevents.CallbackEvent || envelope.Event.Type == "" {
		return "", false
	}
	return envelope.Event.Type, true
}

func (h *EventHandler) verify(header http.Header, body []byte) error {
	verifier, err := slackapi.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if _, err := verifier.Write(body); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if err := verifier.Ensure(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

func (h *EventHandler) callback(event slackevents.EventsAPIEvent) {
	outer, ok := event.Data.(*slackevents.EventsAPICallbackEvent)
	if !ok {
		return
	}

	mention, ok := h.mention(event)
	if !ok {
		return
	}
	mention.EventID = outer.EventID

	if outer.EventID != "" {
		if err := h.seen.Add(outer.EventID, struct{}{}, cache.DefaultExpiration); err != nil {
			slog.Debug("Ignoring duplicate Slack event", "event_id", outer.EventID)
			return
		}
	}

	h.dispatch(mention)
}

func (h *EventHandler) mention(event slackevents.EventsAPIEvent) (Mention, bool) {
	var mention Mention

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" {
			return Mention{}, false
		}
		mention = Mention{
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}
	case *slackevents.MessageEvent:
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
			return Mention{}, false
		}
		mention = Mention{
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
			Direct:   true,
		}
	default:
		return Mention{}, false
	}

	if mention.User == "" || (h.botUserID != "" && mention.User == h.botUserID) {
		return Mention{}, false
	}

	mention.TeamID = event.TeamID
	mention.Text = StripMentions(mention.Text)
	if mention.Text == "" {
		return Mention{}, false
	}
	return mention, true
}

// StripMentions removes the user mentions a message starts with.
func StripMentions(text string) string {
	return strings.TrimSpace(leadingMentions.ReplaceAllString(text, ""))
}
