package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// DefaultSubject is used when a rule has no subject header.
const DefaultSubject = "Modbot rule matched"

// Data is the value message templates execute against, e.g.
//
//	{{.Item.Author.Name}} {{.Rule.Headers.subject}} {{.Matches.title.full}}
//
// Content without "{{" is read as single-brace format fields instead:
//
//	{thing.author} {thing.permalink} {rule[subject]} {matches[title][full]}
type Data struct {
	Item    *core.Item
	Rule    *core.Rule
	Matches core.Captures
}

// DefaultText is the message sent when a rule has no content or its
// content fails to render.
func DefaultText(item *core.Item, rule *core.Rule) string {
	return fmt.Sprintf("The following post/comment by /u/%s matched the rule\n%s: %s",
		item.AuthorName(), rule.Source, item.Permalink)
}

// Render composes the subject and text of a message for rule matching item.
// On a template failure the default text is returned together with an error
// wrapping core.ErrTemplate.
func Render(item *core.Item, rule *core.Rule, matches core.Captures) (subject, text string, err error) {
	subject = DefaultSubject
	if s, ok := rule.Get(core.KeySubject); ok && s != "" {
		subject = s
	}
	if rule.Content == "" {
		return subject, DefaultText(item, rule), nil
	}

	content, err := formatFields(rule.Content)
	if err != nil {
		return subject, DefaultText(item, rule), fmt.Errorf("%w: %v", core.ErrTemplate, err)
	}
	tmpl, err := template.New(rule.Source).Option("missingkey=error").Parse(content)
	if err != nil {
		return subject, DefaultText(item, rule), fmt.Errorf("%w: %v", core.ErrTemplate, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, Data{Item: item, Rule: rule, Matches: matches}); err != nil {
		return subject, DefaultText(item, rule), fmt.Errorf("%w: %v", core.ErrTemplate, err)
	}
	return subject, b.String(), nil
}

// thingFields maps item attribute names usable in format fields to template pipelines.
var thingFields = map[string]string{
	"id":          ".Item.ID",
	"name":        ".Item.ID",
	"title":       ".Item.Title",
	"body":        ".Item.Body",
	"selftext":    ".Item.Body",
	"domain":      ".Item.Domain",
	"permalink":   ".Item.Permalink",
	"url":         ".Item.Permalink",
	"subreddit":   ".Item.Subreddit",
	"score":       ".Item.Score",
	"ups":         ".Item.Ups",
	"downs":       ".Item.Downs",
	"num_reports": ".Item.NumReports",
	"author":      ".Item.AuthorName",
}

// formatFields rewrites single-brace format fields into template actions.
// Content that already contains "{{" is returned as is. A "}" outside a
// field is literal.
func formatFields(content string) (string, error) {
	if strings.Contains(content, "{{") {
		return content, nil
	}
	var b strings.Builder
	rest := content
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:open])
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", errors.New("unterminated format field")
		}
		pipeline, err := formatField(rest[open+1 : open+end])
		if err != nil {
			return "", err
		}
		b.WriteString("{{" + pipeline + "}}")
		rest = rest[open+end+1:]
	}
}

// formatField translates one field such as "thing.title" or "matches[title][full]".
func formatField(field string) (string, error) {
	head, path, keys, err := splitField(field)
	if err != nil {
		return "", err
	}
	switch {
	case head == "thing" && len(keys) == 0 && (len(path) == 1 || len(path) == 2 && path[0] == "author" && path[1] == "name"):
		if pipeline, ok := thingFields[path[0]]; ok {
			return pipeline, nil
		}
	case head == "rule" && len(path) == 0 && len(keys) == 1:
		return "index .Rule.Headers " + strconv.Quote(strings.ToLower(keys[0])), nil
	case head == "rule" && len(keys) == 0 && len(path) == 1 && path[0] == "_filename":
		return ".Rule.Source", nil
	case head == "matches" && len(path) == 0 && len(keys) == 2:
		return "index .Matches " + strconv.Quote(keys[0]) + " " + strconv.Quote(keys[1]), nil
	}
	return "", fmt.Errorf("unsupported format field {%s}", field)
}

// splitField parses "head.a.b" or "head[k1][k2]".
func splitField(field string) (head string, path, keys []string, err error) {
	field = strings.TrimSpace(field)
	i := strings.IndexAny(field, ".[")
	if i < 0 {
		return field, nil, nil, nil
	}
	head, rest := field[:i], field[i:]
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			j := strings.IndexAny(rest, ".[")
			if j < 0 {
				j = len(rest)
			}
			path = append(path, rest[:j])
			rest = rest[j:]
		case '[':
			j := strings.IndexByte(rest, ']')
			if j < 0 {
				return "", nil, nil, fmt.Errorf("unterminated index in {%s}", field)
			}
			keys = append(keys, rest[1:j])
			rest = rest[j+1:]
		default:
			return "", nil, nil, fmt.Errorf("malformed format field {%s}", field)
		}
	}
	return head, path, keys, nil
}
