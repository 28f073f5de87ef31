// Package match evaluates items against the rule snapshot: first match wins,
// fields are checked cheapest first and a failed field ends the rule.
package match

import (
	"log/slog"
	"strconv"

	"github.com/dlclark/regexp2"

	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
)

// Rule reports whether every recognized condition of rule holds for item and
// returns the named groups captured by the non-negated ones, keyed by field.
// A rule without recognized conditions matches everything.
func Rule(item *core.Item, rule *core.Rule, reg *field.Registry) (core.Captures, bool) {
	m := matcher{registry: reg, logger: discard}
	return m.match(item, rule)
}

var discard = slog.New(slog.DiscardHandler)

type matcher struct {
	registry *field.Registry
	logger   *slog.Logger
	// beforeChase runs before the first condition needing the author.
	beforeChase func()
}

func (m matcher) match(item *core.Item, rule *core.Rule) (core.Captures, bool) {
	captures := make(core.Captures)
	for _, cond := range rule.Conditions {
		acc, ok := m.registry.Resolve(cond.Field)
		if !ok {
			continue
		}
		if acc.Cost == field.CostChase && m.beforeChase != nil {
			m.beforeChase()
		}

		value, err := acc.Text(item)
		if err != nil {
			m.logger.Debug("field not applicable", "rule", rule.Source, "field", cond.Key, "error", err)
			return nil, false
		}

		found, err := cond.Regexp.FindStringMatch(value)
		if err != nil {
			m.logger.Warn("pattern evaluation failed", "rule", rule.Source, "field", cond.Key, "error", err)
			return nil, false
		}

		if cond.Negate {
			if found != nil {
				m.logger.Debug("negated field matched", "rule", rule.Source, "field", cond.Key)
				return nil, false
			}
			continue
		}
		if found == nil {
			m.logger.Debug("field did not match", "rule", rule.Source, "field", cond.Key)
			return nil, false
		}
		captures[cond.Field] = groups(found)
	}
	return captures, true
}

// groups collects the named groups that took part in the match.
func groups(m *regexp2.Match) map[string]string {
	out := make(map[string]string)
	for _, g := range m.Groups() {
		if _, err := strconv.Atoi(g.Name); err == nil {
			continue
		}
		if len(g.Captures) == 0 {
			continue
		}
		out[g.Name] = g.String()
	}
	return out
}
