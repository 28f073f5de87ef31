// Package action turns a matched rule's directive list into calls on a
// core.Executor.
package action

import (
	"strings"
)

// Directive names understood by the Dispatcher.
const (
	Upvote        = "upvote"
	Log           = "log"
	Spam          = "spam"
	Remove        = "remove"
	Approve       = "approve"
	Respond       = "respond"
	MessageMods   = "messagemods"
	MessageAuthor = "messageauthor"
	Report        = "report"
	LinkFlair     = "linkflair"
	Beep          = "beep"
	Bell          = "bell"
	None          = "none"
	Null          = "null"
	Ignore        = "ignore"
)

// Directive is one parsed token of a rule's action list.
type Directive struct {
	// Name is the lower-cased directive name.
	Name string
	// Param is the text after the first colon, with its case preserved.
	Param    string
	HasParam bool
	// Raw is the trimmed token as written.
	Raw string
}

func (d Directive) String() string {
	return d.Raw
}

// ParseDirectives splits comma-separated directive lists, in order. Empty
// tokens are dropped.
func ParseDirectives(lists ...string) []Directive {
	var out []Directive
	for _, list := range lists {
		for _, tok := range strings.Split(list, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			name, param, ok := strings.Cut(tok, ":")
			out = append(out, Directive{
				Name:     strings.ToLower(strings.TrimSpace(name)),
				Param:    strings.TrimSpace(param),
				HasParam: ok,
				Raw:      tok,
			})
		}
	}
	return out
}

// needsMessage reports whether the directive sends composed text.
func (d Directive) needsMessage() bool {
	switch d.Name {
	case Respond, MessageMods, MessageAuthor:
		return true
	}
	return false
}

// flair splits a linkflair parameter into text and css class.
// "text" sets only the text, "css:text" sets both.
func (d Directive) flair() (text, cssClass string) {
	css, rest, ok := strings.Cut(d.Param, ":")
	if !ok {
		return d.Param, ""
	}
	return rest, css
}
