package platform

import (
	"github.com/aretw0/introspection"
)

// BotState exposes internal state for observability.
type BotState struct {
	Dir         string         `json:"dir"`
	Pattern     string         `json:"pattern"`
	Watching    bool           `json:"watching"`
	SeenStorage string         `json:"seen_storage"`
	Components  map[string]any `json:"components"`
}

// State implements introspection.Introspectable.
func (b *Bot) State() any {
	storageType := "custom"
	if b.SeenLog != nil {
		storageType = b.SeenLog.ComponentType()
	} else if comp, ok := b.opts.seenStorage.(introspection.Component); ok {
		storageType = comp.ComponentType()
	}

	components := map[string]any{}
	for _, c := range []introspection.Introspectable{b.Store, b.Tracker, b.Engine} {
		name := "unknown"
		if comp, ok := c.(introspection.Component); ok {
			name = comp.ComponentType()
		}
		components[name] = c.State()
	}
	if b.SeenLog != nil {
		components[b.SeenLog.ComponentType()] = b.SeenLog.State()
	}

	return BotState{
		Dir:         b.Dir,
		Pattern:     b.Pattern,
		Watching:    b.Watching(),
		SeenStorage: storageType,
		Components:  components,
	}
}

// ComponentType implements introspection.Component.
func (b *Bot) ComponentType() string {
	return "modbot"
}

var _ introspection.Introspectable = (*Bot)(nil)
var _ introspection.Component = (*Bot)(nil)
