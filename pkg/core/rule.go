package core

import (
	"maps"
	"slices"

	"github.com/dlclark/regexp2"
)

// Reserved header keys consumed by the dispatcher rather than the matcher.
const (
	KeyAction  = "action"
	KeyActions = "actions"
	KeySubject = "subject"
	KeyContent = "content"
)

// NegationPrefix inverts a field condition when it prefixes the field name.
const NegationPrefix = "!"

// Condition is one compiled field constraint of a rule.
type Condition struct {
	// Key is the header key as declared, e.g. "!title".
	Key string
	// Field is the accessor name with any negation prefix stripped.
	Field   string
	Negate  bool
	Pattern string
	Regexp  *regexp2.Regexp
}

// Rule is a parsed rule source. A Rule is never mutated once published in a
// Snapshot; a changed source produces a new Rule value.
type Rule struct {
	// Source is the stable identity of the rule, normally its canonical file path.
	Source string
	// Headers holds every header key (lower-cased) with its last declared value.
	Headers map[string]string
	// Order lists header keys in first-declaration order.
	Order []string
	// Content is the free-text body, used as the message template.
	Content string
	// Conditions are the recognized field constraints in evaluation order.
	Conditions []Condition
}

// Get returns the value of a header key.
func (r *Rule) Get(key string) (string, bool) {
	v, ok := r.Headers[key]
	return v, ok
}

// ActionLists returns the raw directive lists of the rule, "action" before "actions".
func (r *Rule) ActionLists() []string {
	var lists []string
	for _, key := range []string{KeyAction, KeyActions} {
		if v, ok := r.Headers[key]; ok && v != "" {
			lists = append(lists, v)
		}
	}
	return lists
}

// Equal reports whether two rules are structurally identical.
func (r *Rule) Equal(other *Rule) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Source == other.Source &&
		r.Content == other.Content &&
		slices.Equal(r.Order, other.Order) &&
		maps.Equal(r.Headers, other.Headers)
}

// Snapshot is an immutable, ordered view of all loaded rules.
type Snapshot struct {
	Version uint64
	Rules   []*Rule
}

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Sources returns the rule identities in evaluation order.
func (s *Snapshot) Sources() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Rules))
	for _, r := range s.Rules {
		out = append(out, r.Source)
	}
	return out
}

// Find returns the rule with the given source, if present.
func (s *Snapshot) Find(source string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	for _, r := range s.Rules {
		if r.Source == source {
			return r, true
		}
	}
	return nil, false
}
