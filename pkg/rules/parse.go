// Package rules parses rule sources and keeps the live rule set.
//
// A rule source is a block of "key: value" header lines, optionally followed
// by a blank line and a free-text body:
//
//	# remove announcements from non-moderators
//	title: ^\[Mod\]
//	!username: ^(alice|bob)$
//	action: remove, messageauthor
//	subject: Please don't
//
//	Hi {{.Item.Author.Name}}, only moderators may post announcements.
//
// Header keys are case-insensitive. Lines starting with "#" before the blank
// line are comments. A repeated key overwrites the earlier value.
// A source with no header and no body is rejected rather than loaded as a
// rule matching everything; write "type: .*" for that.
package rules

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
)

// CaptureAll is the named group wrapping every field pattern.
const CaptureAll = "full"

const maxLineSize = 1 << 20

var errEmptySource = errors.New("empty rule source")

// Parse reads a rule source. The returned rule has no compiled conditions.
func Parse(source string, r io.Reader) (*core.Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &core.ParseError{Source: source, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &core.ParseError{Source: source, Err: errors.New("source is not valid UTF-8")}
	}

	rule := &core.Rule{
		Source:  source,
		Headers: make(map[string]string),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var body []string
	inBody := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if inBody {
			body = append(body, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			inBody = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &core.ParseError{Source: source, Line: lineNo, Err: fmt.Errorf("expected \"key: value\", got %q", line)}
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || key == core.NegationPrefix {
			return nil, &core.ParseError{Source: source, Line: lineNo, Err: errors.New("empty header key")}
		}
		if _, seen := rule.Headers[key]; !seen {
			rule.Order = append(rule.Order, key)
		}
		rule.Headers[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.ParseError{Source: source, Line: lineNo + 1, Err: err}
	}

	rule.Content = strings.TrimSpace(strings.Join(body, "\n"))
	if rule.Content == "" {
		rule.Content = rule.Headers[core.KeyContent]
	}

	if len(rule.Headers) == 0 && rule.Content == "" {
		return nil, &core.ParseError{Source: source, Err: errEmptySource}
	}
	return rule, nil
}

// Compile resolves the rule's header keys against reg and compiles the
// patterns of recognized fields into conditions, in evaluation order.
// Keys unknown to reg are left uncompiled.
func Compile(rule *core.Rule, reg *field.Registry, timeout time.Duration) error {
	conditions := make([]core.Condition, 0, len(rule.Order))
	for _, key := range reg.SortKeys(rule.Order) {
		name, negate := field.SplitKey(key)
		if _, ok := reg.Resolve(name); !ok {
			continue
		}
		pattern := rule.Headers[key]
		re, err := compilePattern(pattern, timeout)
		if err != nil {
			return &core.ParseError{Source: rule.Source, Err: fmt.Errorf("field %s: %w", key, err)}
		}
		conditions = append(conditions, core.Condition{
			Key:     key,
			Field:   name,
			Negate:  negate,
			Pattern: pattern,
			Regexp:  re,
		})
	}
	rule.Conditions = conditions
	return nil
}

// compilePattern wraps pattern, unescaped, in the catch-all named group.
func compilePattern(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile("(?<"+CaptureAll+">"+pythonGroups(pattern)+")", regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return re, nil
}

// pythonGroups rewrites the (?P<name>...) and (?P=name) group forms, which
// existing rule files use, into their .NET equivalents (?<name>...) and \k<name>.
func pythonGroups(pattern string) string {
	if !strings.Contains(pattern, "(?P") {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			b.WriteByte(c)
			b.WriteByte(pattern[i+1])
			i++
			continue
		}
		rest := pattern[i:]
		switch {
		case strings.HasPrefix(rest, "(?P<"):
			b.WriteString("(?<")
			i += len("(?P<") - 1
		case strings.HasPrefix(rest, "(?P="):
			end := strings.IndexByte(rest, ')')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteString(`\k<` + rest[len("(?P="):end] + ">")
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
