package action_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasher/reddit-modbot/pkg/action"
	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/rules"
)

var quiet = slog.New(slog.DiscardHandler)

// failingApprove behaves like DryRun except that Approve always fails.
type failingApprove struct {
	*action.DryRun
}

func (f failingApprove) Approve(ctx context.Context, item *core.Item) error {
	return errors.New("403 forbidden")
}

func mustRule(t *testing.T, src string) *core.Rule {
	t.Helper()
	rule, err := rules.Parse("/rules/test.rule", strings.NewReader(src))
	require.NoError(t, err)
	return rule
}

func comment() *core.Item {
	return &core.Item{
		ID:        "t1_abc",
		Kind:      core.KindComment,
		Body:      "buy cheap stuff",
		Permalink: "https://reddit.com/r/test/comments/x/y/abc",
		Author:    &core.Author{Name: "spammer"},
	}
}

func TestParseDirectives(t *testing.T) {
	got := action.ParseDirectives(" Remove , ,linkflair:Warn:Read The Rules", "bell")

	require.Len(t, got, 3)
	assert.Equal(t, "remove", got[0].Name)
	assert.False(t, got[0].HasParam)
	assert.Equal(t, "linkflair", got[1].Name)
	assert.Equal(t, "Warn:Read The Rules", got[1].Param)
	assert.Equal(t, "bell", got[2].Name)
}

func TestApply_InvokesInOrder(t *testing.T) {
	exec := action.NewDryRun(quiet)
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: report, spam\nactions: upvote, remove\n")
	require.NoError(t, d.Apply(context.Background(), comment(), rule, nil))

	calls := exec.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"report", "remove", "upvote", "remove"}, exec.Capabilities())
	assert.Equal(t, []string{"spam=true"}, calls[1].Args)
	assert.Equal(t, []string{"spam=false"}, calls[3].Args)
}

func TestApply_UnknownDirectiveIsSkipped(t *testing.T) {
	exec := action.NewDryRun(quiet)
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: frobnicate, linkflair, report\n")
	require.NoError(t, d.Apply(context.Background(), comment(), rule, nil))

	assert.Equal(t, []string{"report"}, exec.Capabilities())
}

func TestApply_FailureDoesNotStopRemaining(t *testing.T) {
	exec := failingApprove{action.NewDryRun(quiet)}
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: approve, report\n")
	err := d.Apply(context.Background(), comment(), rule, nil)

	var aerr *core.ActionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "approve", aerr.Directive)
	assert.Equal(t, []string{"report"}, exec.Capabilities())
}

func TestApply_LinkFlair(t *testing.T) {
	exec := action.NewDryRun(quiet)
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: linkflair:Off Topic, LinkFlair:warn:Read The Rules\n")
	require.NoError(t, d.Apply(context.Background(), comment(), rule, nil))

	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"Off Topic", ""}, calls[0].Args)
	assert.Equal(t, []string{"Read The Rules", "warn"}, calls[1].Args)
}

func TestApply_BellAndNoOps(t *testing.T) {
	var bell bytes.Buffer
	exec := action.NewDryRun(quiet)
	d := action.NewDispatcher(exec, action.WithLogger(quiet), action.WithBell(&bell))

	rule := mustRule(t, "action: beep, none, null, ignore, bell\n")
	require.NoError(t, d.Apply(context.Background(), comment(), rule, nil))

	assert.Equal(t, "\a\a", bell.String())
	assert.Empty(t, exec.Calls())
}

func TestApply_MessageUsesTemplate(t *testing.T) {
	exec := action.NewDryRun(quiet)
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: messageauthor\nsubject: About your comment\n\n"+
		"Hi {{.Item.Author.Name}}, {{index .Matches.body \"full\"}} is not allowed.\n")
	matches := core.Captures{"body": {"full": "cheap"}}
	require.NoError(t, d.Apply(context.Background(), comment(), rule, matches))

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "notify-author", calls[0].Capability)
	assert.Equal(t, []string{"About your comment", "Hi spammer, cheap is not allowed."}, calls[0].Args)
}

func TestApply_TemplateFailureFallsBack(t *testing.T) {
	exec := action.NewDryRun(quiet)
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: messagemods, respond\n\n{{.Matches.title.full}}\n")
	require.NoError(t, d.Apply(context.Background(), comment(), rule, core.Captures{}))

	want := "The following post/comment by /u/spammer matched the rule\n/rules/test.rule: https://reddit.com/r/test/comments/x/y/abc"
	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{action.DefaultSubject, want}, calls[0].Args)
	assert.Equal(t, []string{want}, calls[1].Args)
}

func TestRender(t *testing.T) {
	item := comment()

	subject, text, err := action.Render(item, mustRule(t, "action: respond\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, action.DefaultSubject, subject)
	assert.Contains(t, text, "/u/spammer")

	_, _, err = action.Render(item, mustRule(t, "action: respond\n\n{{.Item.Nope}}\n"), nil)
	assert.ErrorIs(t, err, core.ErrTemplate)

	_, _, err = action.Render(item, mustRule(t, "action: respond\n\n{{ unclosed\n"), nil)
	assert.ErrorIs(t, err, core.ErrTemplate)

	item.Author = nil
	_, text, err = action.Render(item, mustRule(t, "action: respond\n"), nil)
	require.NoError(t, err)
	assert.Contains(t, text, "/u/[deleted]")
}

func TestRender_FormatFields(t *testing.T) {
	item := comment()
	matches := core.Captures{"body": {"full": "cheap", "word": "che"}}

	rule := mustRule(t, "action: respond\nsubject: Heads up\n\n"+
		"Hi {thing.author}, {matches[body][full]} ({matches[body][word]}) broke {rule[subject]} in {rule._filename}: {thing.permalink}")
	_, text, err := action.Render(item, rule, matches)
	require.NoError(t, err)
	assert.Equal(t, "Hi spammer, cheap (che) broke Heads up in /rules/test.rule: https://reddit.com/r/test/comments/x/y/abc", text)

	_, text, err = action.Render(item, mustRule(t, "action: respond\n\nby {thing.author.name}, missing [{matches[title][full]}]"), matches)
	require.NoError(t, err)
	assert.Equal(t, "by spammer, missing []", text)

	for _, body := range []string{"{thing.nope}", "{thing.title!r}", "{matches[body]}", "{thing.title", "{}"} {
		_, text, err = action.Render(item, mustRule(t, "action: respond\n\n"+body), matches)
		assert.ErrorIs(t, err, core.ErrTemplate, body)
		assert.Contains(t, text, "matched the rule", body)
	}
}

func TestDryRun_Log(t *testing.T) {
	var buf bytes.Buffer
	exec := action.NewDryRun(slog.New(slog.NewTextHandler(&buf, nil)))
	d := action.NewDispatcher(exec, action.WithLogger(quiet))

	rule := mustRule(t, "action: log\n")
	require.NoError(t, d.Apply(context.Background(), comment(), rule, nil))

	assert.Equal(t, []string{"log"}, exec.Capabilities())
	assert.Contains(t, buf.String(), "https://reddit.com/r/test/comments/x/y/abc - /rules/test.rule")
}
