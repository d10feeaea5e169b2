package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AnyChannel binds an agent to every channel of a team.
const AnyChannel = "*"

const bindingPrefix = "binding/"

// ErrNoAgent is returned when no agent is bound to a conversation and there
// is no default agent.
var ErrNoAgent = errors.New("no agent bound")

// Binding routes the messages of a Slack channel to an agent.
type Binding struct {
	TeamID    string    `json:"team_id"`
	Channel   string    `json:"channel"`
	AgentID   string    `json:"agent_id"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (b Binding) validate() error {
	switch {
	case b.TeamID == "":
		return errors.New("team id cannot be empty")
	case b.Channel == "":
		return errors.New("channel cannot be empty")
	case b.AgentID == "":
		return errors.New("agent id cannot be empty")
	case strings.Contains(b.TeamID, "/") || strings.Contains(b.Channel, "/"):
		return errors.New("team id and channel cannot contain '/'")
	}
	return nil
}

func bindingKey(teamID, channel string) string {
	return bindingPrefix + teamID + "/" + channel
}

// Bindings manages team/channel to agent bindings on top of a Store.
type Bindings struct {
	store        Store
	defaultAgent string
}

func NewBindings(store Store, defaultAgent string) *Bindings {
	return &Bindings{
		store:        store,
		defaultAgent: defaultAgent,
	}
}

func (b *Bindings) Bind(ctx context.Context, binding Binding) error {
	if err := binding.validate(); err != nil {
		return err
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now().UTC()
	}

	value, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("encoding binding: %w", err)
	}
	return b.store.Put(ctx, bindingKey(binding.TeamID, binding.Channel), value)
}

func (b *Bindings) Unbind(ctx context.Context, teamID, channel string) error {
	return b.store.Delete(ctx, bindingKey(teamID, channel))
}

func (b *Bindings) Get(ctx context.Context, teamID, channel string) (Binding, error) {
	value, err := b.store.Get(ctx, bindingKey(teamID, channel))
	if err != nil {
		return Binding{}, err
	}

	var binding Binding
	if err := json.Unmarshal(value, &binding); err != nil {
		return Binding{}, fmt.Errorf("decoding binding of %s/%s: %w", teamID, channel, err)
	}
	return binding, nil
}

// List returns the bindings of teamID, or of every team when teamID is empty.
func (b *Bindings) List(ctx context.Context, teamID string) ([]Binding, error) {
	prefix := bindingPrefix
	if teamID != "" {
		prefix = bindingKey(teamID, "")
	}

	entries, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	bindings := make([]Binding, 0, len(entries))
	for _, entry := range entries {
		var binding Binding
		if err := json.Unmarshal(entry.Value, &binding); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", entry.Key, err)
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

// ResolveAgent returns the agent answering in channel: the channel's own
// binding, then the team-wide binding, then the default agent.
func (b *Bindings) ResolveAgent(ctx context.Context, teamID, channel string) (string, error) {
	for _, candidate := range []string{channel, AnyChannel} {
		binding, err := b.Get(ctx, teamID, candidate)
		switch {
		case err == nil:
			return binding.AgentID, nil
		case !errors.Is(err, ErrNotFound):
			return "", err
		}
	}

	if b.defaultAgent != "" {
		return b.defaultAgent, nil
	}
	return "", fmt.Errorf("%w to channel %s of team %s", ErrNoAgent, channel, teamID)
}
