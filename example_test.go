package modbot_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rasher/reddit-modbot"
	"github.com/rasher/reddit-modbot/pkg/action"
)

// Example_basic loads one rule and evaluates a submission against it.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "modbot-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	rule := "title: ^\\[Mod\\]\n!username: automoderator\naction: approve, linkflair:announcement\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "announce.rule"), []byte(rule), 0644); err != nil {
		log.Fatal(err)
	}

	quiet := slog.New(slog.DiscardHandler)
	exec := action.NewDryRun(quiet)
	ctx := context.Background()

	bot, err := modbot.New(ctx, tmpDir,
		modbot.WithLogger(quiet),
		modbot.WithExecutor(exec),
		modbot.WithSeenLog(filepath.Join(tmpDir, "seen.list")),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer bot.Close(ctx)

	item := &modbot.Item{
		ID:     "t3_abc",
		Kind:   "submission",
		Title:  "[Mod] Weekly thread",
		Author: &modbot.Author{Name: "alice"},
	}

	for i := 0; i < 2; i++ {
		out, err := bot.Evaluate(ctx, item, modbot.ContextStream)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("matched=%v skipped=%v\n", out.Matched, out.Skipped)
	}
	fmt.Println(exec.Capabilities())
	// Output:
	// matched=true skipped=false
	// matched=false skipped=true
	// [approve set-flair]
}
