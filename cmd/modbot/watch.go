package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rasher/reddit-modbot"
	"github.com/rasher/reddit-modbot/internal/config"
	"github.com/rasher/reddit-modbot/pkg/action"
	"github.com/rasher/reddit-modbot/pkg/core"
)

var (
	watchContext string
	watchStatic  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Evaluate items read from stdin",
	Long: `Reads items as a stream of JSON objects from stdin and evaluates each one
against the rules, printing one JSON result per line. Actions are logged, not
performed. Rule files are reloaded as they change unless --static is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := core.Context(watchContext)
		if !c.Valid() {
			return fmt.Errorf("unknown context %q", watchContext)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cfg, c, !watchStatic, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchContext, "context", string(core.ContextStream), "Evaluation context: stream or queue")
	watchCmd.Flags().BoolVar(&watchStatic, "static", false, "Do not reload rule files on change")
}

// result is the line printed for every evaluated item.
type result struct {
	ID      string `json:"id"`
	Skipped bool   `json:"skipped,omitempty"`
	Matched bool   `json:"matched"`
	Rule    string `json:"rule,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runWatch(ctx context.Context, c config.Config, evalCtx core.Context, follow bool, in io.Reader, out io.Writer) error {
	logger := slog.Default()

	backend, err := openSeen(ctx, c, logger.With("component", "seen"))
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bot, err := modbot.New(ctx, c.Rules.Dir,
		modbot.WithLogger(logger),
		modbot.WithPattern(c.Rules.Pattern),
		modbot.WithSeenStorage(backend.storage),
		modbot.WithLocation(c.Location()),
		modbot.WithMetrics(reg),
		modbot.WithExecutor(action.NewDryRun(logger.With("component", "dryrun"))),
		modbot.WithBell(os.Stderr),
	)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bot.Close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	if follow {
		if err := bot.Start(ctx); err != nil {
			return err
		}
	}

	if c.Metrics.Addr != "" {
		srv := serveMetrics(ctx, c.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return evaluateStream(ctx, bot, evalCtx, in, out, logger)
}

// evaluateStream evaluates every JSON item read from in. It stops at the end
// of the input, when ctx is done, or when a seen mark cannot be persisted.
func evaluateStream(ctx context.Context, bot *modbot.Bot, evalCtx core.Context, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan *core.Item)
	decodeErr := make(chan error, 1)
	go func() {
		defer close(items)
		dec := json.NewDecoder(in)
		for {
			var item core.Item
			if err := dec.Decode(&item); err != nil {
				if !errors.Is(err, io.EOF) {
					decodeErr <- fmt.Errorf("invalid item: %w", err)
				}
				return
			}
			select {
			case items <- &item:
			case <-ctx.Done():
				return
			}
		}
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-items:
			if !ok {
				select {
				case err := <-decodeErr:
					return err
				default:
					return nil
				}
			}
			outcome, err := bot.Evaluate(ctx, item, evalCtx)
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				// Refused before it started; the item was not evaluated.
				return nil
			}
			res := result{ID: item.ID, Skipped: outcome.Skipped, Matched: outcome.Matched}
			if outcome.Rule != nil {
				res.Rule = outcome.Rule.Source
			}
			if err != nil {
				res.Error = err.Error()
			}
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
			if errors.Is(err, core.ErrSeenPersist) {
				return err
			}
			if err != nil {
				logger.Warn("item rejected", "item", item.ID, "error", err)
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	lifecycle.Go(ctx, func(context.Context) error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		logger.Error("metrics server failed", "error", err)
	}))
	return srv
}
