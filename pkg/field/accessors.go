package field

import (
	"time"
	"unicode/utf8"

	"github.com/rasher/reddit-modbot/pkg/core"
)

var (
	postKinds   = []core.Kind{core.KindSubmission, core.KindComment}
	authorKinds = []core.Kind{core.KindSubmission, core.KindComment, core.KindUser}
)

// DayHourLayout formats the dayhour field, e.g. "Mon-15".
const DayHourLayout = "Mon-15"

// Default returns the standard accessor vocabulary, with dayhour evaluated in local time.
func Default() *Registry {
	return DefaultIn(time.Local)
}

// DefaultIn returns the standard accessor vocabulary with dayhour evaluated in loc.
func DefaultIn(loc *time.Location) *Registry {
	if loc == nil {
		loc = time.Local
	}
	return NewRegistry(
		Accessor{Name: "type", Extract: func(i *core.Item) (any, error) {
			return string(i.Kind), nil
		}},
		Accessor{Name: "body", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return i.Body, nil
		}},
		Accessor{Name: "title", Kinds: []core.Kind{core.KindSubmission}, Extract: func(i *core.Item) (any, error) {
			return i.Title, nil
		}},
		Accessor{Name: "score", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return i.Score, nil
		}},
		Accessor{Name: "upvotes", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return i.Ups, nil
		}},
		Accessor{Name: "downvotes", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return i.Downs, nil
		}},
		Accessor{Name: "domain", Kinds: []core.Kind{core.KindSubmission}, Extract: func(i *core.Item) (any, error) {
			return i.Domain, nil
		}},
		Accessor{Name: "dayhour", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return i.Created.In(loc).Format(DayHourLayout), nil
		}},
		Accessor{Name: "bodylength", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return utf8.RuneCountInString(i.Body), nil
		}},
		Accessor{Name: "numreports", Kinds: postKinds, Extract: func(i *core.Item) (any, error) {
			return i.NumReports, nil
		}},
		Accessor{Name: "username", Kinds: authorKinds, Cost: CostChase, Extract: func(i *core.Item) (any, error) {
			if i.Author == nil {
				return nil, core.ErrNoAuthor
			}
			return i.Author.Name, nil
		}},
		Accessor{Name: "userkarma", Kinds: authorKinds, Cost: CostChase, Extract: func(i *core.Item) (any, error) {
			a, err := resolvedAuthor(i)
			if err != nil {
				return nil, err
			}
			return a.Karma, nil
		}},
		Accessor{Name: "userage", Kinds: authorKinds, Cost: CostChase, Extract: func(i *core.Item) (any, error) {
			a, err := resolvedAuthor(i)
			if err != nil {
				return nil, err
			}
			return a.AgeDays, nil
		}},
	)
}

func resolvedAuthor(i *core.Item) (*core.Author, error) {
	if i.Author == nil {
		return nil, core.ErrNoAuthor
	}
	if !i.Author.Resolved {
		return nil, core.ErrUnresolved
	}
	return i.Author, nil
}
