package action

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// Call records one executor invocation.
type Call struct {
	Capability string
	ItemID     string
	Args       []string
}

// DryRun is a core.Executor that performs nothing. Every call is logged and
// recorded.
type DryRun struct {
	logger *slog.Logger

	mu    sync.Mutex
	calls []Call
}

// NewDryRun creates a dry-run executor logging to logger.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{logger: logger}
}

// Calls returns the recorded invocations in order.
func (e *DryRun) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Capabilities returns just the capability names of the recorded calls.
func (e *DryRun) Capabilities() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.calls))
	for _, c := range e.calls {
		out = append(out, c.Capability)
	}
	return out
}

func (e *DryRun) record(ctx context.Context, capability string, item *core.Item, args ...string) error {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Capability: capability, ItemID: item.ID, Args: args})
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "dry run", "capability", capability, "item", item.ID, "args", args)
	return nil
}

func (e *DryRun) Upvote(ctx context.Context, item *core.Item) error {
	return e.record(ctx, "upvote", item)
}

func (e *DryRun) Remove(ctx context.Context, item *core.Item, spam bool) error {
	return e.record(ctx, "remove", item, "spam="+strconv.FormatBool(spam))
}

func (e *DryRun) Approve(ctx context.Context, item *core.Item) error {
	return e.record(ctx, "approve", item)
}

func (e *DryRun) Respond(ctx context.Context, item *core.Item, text string) error {
	return e.record(ctx, "respond", item, text)
}

func (e *DryRun) NotifyModerators(ctx context.Context, item *core.Item, subject, text string) error {
	return e.record(ctx, "notify-moderators", item, subject, text)
}

func (e *DryRun) NotifyAuthor(ctx context.Context, item *core.Item, subject, text string) error {
	return e.record(ctx, "notify-author", item, subject, text)
}

func (e *DryRun) Report(ctx context.Context, item *core.Item) error {
	return e.record(ctx, "report", item)
}

func (e *DryRun) SetFlair(ctx context.Context, item *core.Item, text, cssClass string) error {
	return e.record(ctx, "set-flair", item, text, cssClass)
}

// Log writes the "permalink - rule" record the log directive asks for.
func (e *DryRun) Log(ctx context.Context, item *core.Item, source string) error {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Capability: "log", ItemID: item.ID, Args: []string{source}})
	e.mu.Unlock()

	e.logger.InfoContext(ctx, item.Permalink+" - "+source, "item", item.ID, "rule", source)
	return nil
}

var _ core.Executor = (*DryRun)(nil)
