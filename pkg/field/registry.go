// Package field maps the field names used in rules to typed read accessors
// over items.
//
// Each accessor declares the item kinds it supports. Extracting a field from an
// unsupported kind fails with core.ErrTypeMismatch, which the matcher treats as
// a failed condition rather than an error.
package field

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// Cost classifies how expensive an accessor is to evaluate.
type Cost int

const (
	// CostLocal accessors read attributes already present on the item.
	CostLocal Cost = iota
	// CostChase accessors need the item's author to be resolved.
	CostChase
)

func (c Cost) String() string {
	if c == CostChase {
		return "chase"
	}
	return "local"
}

// ExtractFunc reads one attribute of an item. It returns a string or a number.
type ExtractFunc func(item *core.Item) (any, error)

// Accessor is a typed read capability mapping an item to a named scalar.
type Accessor struct {
	Name string
	// Kinds lists the supported item kinds. Empty means every kind.
	Kinds   []core.Kind
	Cost    Cost
	Extract ExtractFunc
}

// AppliesTo reports whether the accessor supports items of kind k.
func (a Accessor) AppliesTo(k core.Kind) bool {
	return len(a.Kinds) == 0 || slices.Contains(a.Kinds, k)
}

// Value extracts the raw attribute, checking the item kind first.
func (a Accessor) Value(item *core.Item) (any, error) {
	if item == nil {
		return nil, fmt.Errorf("%s: nil item", a.Name)
	}
	if !a.AppliesTo(item.Kind) {
		return nil, fmt.Errorf("%s on %s: %w", a.Name, item.Kind, core.ErrTypeMismatch)
	}
	return a.Extract(item)
}

// Text extracts the attribute and formats it for pattern matching.
func (a Accessor) Text(item *core.Item) (string, error) {
	v, err := a.Value(item)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return fmt.Sprint(t), nil
	}
}

// Registry resolves canonical field names to accessors.
// A Registry is immutable once built and safe for concurrent use.
type Registry struct {
	accessors map[string]Accessor
	rank      map[string]int
}

// NewRegistry builds a registry. Registration order is the evaluation order
// among accessors of equal cost.
func NewRegistry(accessors ...Accessor) *Registry {
	r := &Registry{
		accessors: make(map[string]Accessor, len(accessors)),
		rank:      make(map[string]int, len(accessors)),
	}
	for _, a := range accessors {
		r.add(a)
	}
	return r
}

func (r *Registry) add(a Accessor) {
	name := strings.ToLower(a.Name)
	a.Name = name
	if _, exists := r.rank[name]; !exists {
		r.rank[name] = len(r.rank)
	}
	r.accessors[name] = a
}

// With returns a copy of the registry extended (or overridden) by accessors.
func (r *Registry) With(accessors ...Accessor) *Registry {
	out := &Registry{
		accessors: make(map[string]Accessor, len(r.accessors)+len(accessors)),
		rank:      make(map[string]int, len(r.rank)+len(accessors)),
	}
	// Preserve the original ranks before appending new names.
	names := r.Names()
	for _, name := range names {
		out.add(r.accessors[name])
	}
	for _, a := range accessors {
		out.add(a)
	}
	return out
}

// Resolve returns the accessor registered under name.
func (r *Registry) Resolve(name string) (Accessor, bool) {
	a, ok := r.accessors[name]
	return a, ok
}

// Names returns every registered field name in evaluation order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.accessors))
	for name := range r.accessors {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return r.compare(a, b)
	})
	return names
}

func (r *Registry) compare(a, b string) int {
	ca, cb := r.accessors[a].Cost, r.accessors[b].Cost
	if ca != cb {
		return int(ca) - int(cb)
	}
	return r.rank[a] - r.rank[b]
}

// SplitKey separates a rule header key into its accessor name and negation flag.
func SplitKey(key string) (name string, negate bool) {
	if strings.HasPrefix(key, core.NegationPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(key, core.NegationPrefix)), true
	}
	return key, false
}

// SortKeys orders rule header keys for evaluation: recognized fields first by
// cost then registration order, then unrecognized keys in their given order.
func (r *Registry) SortKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.SortStableFunc(out, func(a, b string) int {
		na, _ := SplitKey(a)
		nb, _ := SplitKey(b)
		_, okA := r.accessors[na]
		_, okB := r.accessors[nb]
		switch {
		case okA && okB:
			return r.compare(na, nb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return out
}
