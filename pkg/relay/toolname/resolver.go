// Package toolname resolves the invocation-scoped tool references found in an
// agent stream ("_0", "_1", ...) to names a person can read.
package toolname

import (
	"context"
	"fmt"

	"github.com/docker/agent-relay/pkg/relay/stream"
)

// descriptionWidth bounds how much of a tool description is displayed.
const descriptionWidth = 60

// Lister returns the tools an agent declares, as a map from tool reference
// to stable tool id.
type Lister interface {
	ListTools(ctx context.Context, agentID string) (map[string]string, error)
}

// Resolver maps tool references to display names for one relay invocation.
// Entries are only ever added. Names are looked up, in order, in:
//
//  1. the ids fetched from the agent before streaming (Prefetch),
//  2. the tool metadata seen in the stream before the call (Register),
//  3. the reference itself, formatted with FormatName.
//
// A Resolver is not safe for concurrent use.
type Resolver struct {
	prefetched map[string]string
	registered map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{
		prefetched: make(map[string]string),
		registered: make(map[string]string),
	}
}

// Prefetch seeds the resolver with the agent's declared tools. A failure
// leaves the resolver usable; callers are expected to log it and go on.
func (r *Resolver) Prefetch(ctx context.Context, lister Lister, agentID string) error {
	tools, err := lister.ListTools(ctx, agentID)
	if err != nil {
		return fmt.Errorf("listing tools of agent %q: %w", agentID, err)
	}

	for ref, id := range tools {
		if ref == "" || id == "" {
			continue
		}
		if _, exists := r.prefetched[ref]; !exists {
			r.prefetched[ref] = id
		}
	}
	return nil
}

// Register records the metadata of a tool announced in the stream.
func (r *Resolver) Register(meta stream.ToolMetadata) {
	if meta.Ref == "" {
		return
	}
	if _, exists := r.registered[meta.Ref]; exists {
		return
	}

	switch {
	case meta.DisplayID != "":
		r.registered[meta.Ref] = FormatName(meta.DisplayID)
	case clip(meta.Description, descriptionWidth) != "":
		r.registered[meta.Ref] = clip(meta.Description, descriptionWidth)
	}
}

// Resolve returns the display name of ref.
func (r *Resolver) Resolve(ref string) string {
	if id, ok := r.prefetched[ref]; ok {
		return FormatName(id)
	}
	if name, ok := r.registered[ref]; ok {
		return name
	}
	return FormatName(ref)
}
