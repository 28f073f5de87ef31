package fs

import (
	"github.com/aretw0/introspection"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// SeenLogState exposes internal state for observability.
type SeenLogState struct {
	Path     string `json:"path"`
	Open     bool   `json:"open"`
	Appended int    `json:"appended"`
	Skipped  int    `json:"skipped_on_load"`
}

// State implements introspection.Introspectable.
func (l *SeenLog) State() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return SeenLogState{
		Path:     l.Path,
		Open:     l.file != nil,
		Appended: l.appended,
		Skipped:  l.skipped,
	}
}

// ComponentType implements introspection.Component.
func (l *SeenLog) ComponentType() string {
	return "seen-log"
}

var _ core.SeenStorage = (*SeenLog)(nil)
var _ introspection.Introspectable = (*SeenLog)(nil)
var _ introspection.Component = (*SeenLog)(nil)
