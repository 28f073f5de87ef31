// Package core holds the domain model of the rule engine: the items being
// moderated, the rules evaluated against them and the ports the engine calls into.
package core

import (
	"fmt"
	"time"
)

// Kind tags the concrete variant of an Item.
type Kind string

const (
	KindSubmission Kind = "submission"
	KindComment    Kind = "comment"
	KindUser       Kind = "user"
)

// Context is the evaluation stream an item came from. Seen tracking is scoped per context.
type Context string

const (
	// ContextStream covers newly posted submissions and comments.
	ContextStream Context = "stream"
	// ContextQueue covers moderation-queue entries.
	ContextQueue Context = "queue"
)

// Contexts lists every known evaluation context.
func Contexts() []Context {
	return []Context{ContextStream, ContextQueue}
}

// Valid reports whether c is a known evaluation context.
func (c Context) Valid() bool {
	return c == ContextStream || c == ContextQueue
}

// Author is the account behind an item.
// Karma and AgeDays are only meaningful once a Decorator has set Resolved.
type Author struct {
	Name     string `json:"name"`
	Karma    int    `json:"karma,omitempty"`
	AgeDays  int    `json:"age_days,omitempty"`
	Resolved bool   `json:"resolved,omitempty"`
}

// Item is one unit of content evaluated against the rules.
// Moderation-queue entries keep the kind of the content they wrap.
type Item struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body,omitempty"`
	Domain     string    `json:"domain,omitempty"`
	Permalink  string    `json:"permalink,omitempty"`
	Subreddit  string    `json:"subreddit,omitempty"`
	Score      int       `json:"score"`
	Ups        int       `json:"ups"`
	Downs      int       `json:"downs"`
	NumReports int       `json:"num_reports"`
	Created    time.Time `json:"created"`
	Author     *Author   `json:"author,omitempty"`
}

// AuthorName returns the author's name, or "[deleted]" when the item has none.
func (i *Item) AuthorName() string {
	if i.Author == nil || i.Author.Name == "" {
		return "[deleted]"
	}
	return i.Author.Name
}

func (i *Item) String() string {
	return fmt.Sprintf("%s(%s)", i.Kind, i.ID)
}

// Captures maps a field name to the named groups its pattern captured.
type Captures map[string]map[string]string

// Outcome is the result of evaluating one item.
type Outcome struct {
	// Skipped is set when the item was already seen in the evaluation context.
	Skipped  bool
	Matched  bool
	Rule     *Rule
	Captures Captures
}

// RuleEventKind represents the type of change to a rule source.
type RuleEventKind string

const (
	RuleLoad   RuleEventKind = "load"
	RuleRemove RuleEventKind = "remove"
)

// RuleEvent is a change notification for one rule source.
type RuleEvent struct {
	Kind      RuleEventKind
	Path      string
	Timestamp int64 // Unix timestamp
}

func (e RuleEvent) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}

// SeenRecord is one persisted seen mark.
type SeenRecord struct {
	ItemID    string
	Context   Context
	Timestamp int64 // Unix timestamp
}
