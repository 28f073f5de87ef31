package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// BellChar is written for the beep and bell directives.
const BellChar = "\a"

// Dispatcher resolves a rule's directives into executor calls.
type Dispatcher struct {
	exec   core.Executor
	logger *slog.Logger
	bell   io.Writer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithBell sets where the beep and bell directives write. Defaults to stdout.
func WithBell(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.bell = w
	}
}

// NewDispatcher creates a dispatcher invoking exec.
func NewDispatcher(exec core.Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:   exec,
		logger: slog.Default(),
		bell:   os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.exec == nil {
		d.exec = NewDryRun(d.logger)
	}
	return d
}

// Apply invokes one executor capability per directive of rule, in order.
// A failing or unknown directive never stops the remaining ones; executor
// failures are returned joined, each as a *core.ActionError.
func (d *Dispatcher) Apply(ctx context.Context, item *core.Item, rule *core.Rule, matches core.Captures) error {
	directives := ParseDirectives(rule.ActionLists()...)
	log := d.logger.With("item", item.ID, "rule", rule.Source)

	var (
		errs     []error
		rendered bool
		subject  string
		text     string
	)
	for _, dir := range directives {
		if dir.needsMessage() && !rendered {
			var err error
			subject, text, err = Render(item, rule, matches)
			if err != nil {
				log.Warn("message template failed, using default", "error", err)
			}
			rendered = true
		}

		log.Info("perform", "directive", dir.Raw, "permalink", item.Permalink)
		err := d.perform(ctx, item, rule, dir, subject, text)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrUnknownDirective):
			log.Warn("unknown action", "directive", dir.Raw)
		default:
			log.Error("action failed", "directive", dir.Raw, "error", err)
			errs = append(errs, &core.ActionError{Directive: dir.Raw, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) perform(ctx context.Context, item *core.Item, rule *core.Rule, dir Directive, subject, text string) error {
	switch dir.Name {
	case Upvote:
		return d.exec.Upvote(ctx, item)
	case Log:
		return d.exec.Log(ctx, item, rule.Source)
	case Spam:
		return d.exec.Remove(ctx, item, true)
	case Remove:
		return d.exec.Remove(ctx, item, false)
	case Approve:
		return d.exec.Approve(ctx, item)
	case Respond:
		return d.exec.Respond(ctx, item, text)
	case MessageMods:
		return d.exec.NotifyModerators(ctx, item, subject, text)
	case MessageAuthor:
		return d.exec.NotifyAuthor(ctx, item, subject, text)
	case Report:
		return d.exec.Report(ctx, item)
	case LinkFlair:
		if !dir.HasParam {
			return fmt.Errorf("%w: %s needs a parameter", core.ErrUnknownDirective, dir.Raw)
		}
		flairText, css := dir.flair()
		return d.exec.SetFlair(ctx, item, flairText, css)
	case Beep, Bell:
		_, err := io.WriteString(d.bell, BellChar)
		return err
	case None, Null, Ignore:
		return nil
	default:
		return fmt.Errorf("%w: %s", core.ErrUnknownDirective, dir.Raw)
	}
}
