package core

import "context"

// Executor performs the side-effecting moderation actions on an item.
// Any capability may fail; failures are reported back as errors.
type Executor interface {
	Upvote(ctx context.Context, item *Item) error
	// Remove takes the item down; spam additionally trains the spam filter.
	Remove(ctx context.Context, item *Item, spam bool) error
	Approve(ctx context.Context, item *Item) error
	// Respond posts a distinguished reply to the item.
	Respond(ctx context.Context, item *Item, text string) error
	NotifyModerators(ctx context.Context, item *Item, subject, text string) error
	NotifyAuthor(ctx context.Context, item *Item, subject, text string) error
	Report(ctx context.Context, item *Item) error
	SetFlair(ctx context.Context, item *Item, text, cssClass string) error
	// Log records that the rule identified by source matched the item.
	Log(ctx context.Context, item *Item, source string) error
}

// Decorator resolves derived attributes of an item (e.g. author karma and
// account age) that need a call to a related entity.
type Decorator interface {
	Decorate(ctx context.Context, item *Item) error
}

// DecoratorFunc adapts a function to the Decorator interface.
type DecoratorFunc func(ctx context.Context, item *Item) error

func (f DecoratorFunc) Decorate(ctx context.Context, item *Item) error {
	return f(ctx, item)
}

// SeenStorage is the durable backend of the seen tracker.
type SeenStorage interface {
	// Load returns every persisted record, oldest first.
	Load(ctx context.Context) ([]SeenRecord, error)
	// Append durably persists one record before returning.
	Append(ctx context.Context, rec SeenRecord) error
}
