// Package modbot is the composition root of a rule-driven moderation bot.
//
// Rules are small header/body text files kept in a directory. Each header
// names an item field and a case-insensitive pattern; a "!" prefix negates
// it. Items are checked against the rules in file order and the first rule
// whose every field matches triggers its actions. An item is evaluated at most
// once per context, and the seen marks survive restarts.
//
// Usage:
//
//	bot, err := modbot.New(ctx, "./rules",
//		modbot.WithSeenLog("seen.list"),
//		modbot.WithExecutor(client),
//		modbot.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer bot.Close(ctx)
//
//	// Follow edits to the rule files.
//	if err := bot.Start(ctx); err != nil {
//		return err
//	}
//
//	outcome, err := bot.Evaluate(ctx, item, modbot.ContextStream)
package modbot
