// File: internal/artifacts/generator.go
// Description: Pure artifact generation. Given the goal, the final plan, and
// the execution log, Generate derives the textual run artifacts: a markdown
// summary, a replayable chromedp script, and a structured JSON run log. The
// function performs no I/O and reads no clocks, so identical inputs always
// produce identical artifacts.

package artifacts

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Generate derives the summary, script, and run-log artifacts. Screenshot
// artifacts are not produced here; they require a live browser and are
// appended by the caller.
func Generate(goal string, actions []schemas.Action, log []schemas.LogEntry) []schemas.Artifact {
	return []schemas.Artifact{
		{
			Kind:     schemas.ArtifactSummary,
			Filename: "summary.md",
			Content:  renderSummary(goal, actions, log),
		},
		{
			Kind:     schemas.ArtifactScript,
			Filename: "replay.go",
			Content:  renderScript(goal, actions),
		},
		{
			Kind:     schemas.ArtifactRunLog,
			Filename: "run_log.json",
			Content:  renderRunLog(goal, actions, log),
		},
	}
}

// renderSummary produces the human-readable markdown report.
func renderSummary(goal string, actions []schemas.Action, log []schemas.LogEntry) string {
	var b strings.Builder
	b.WriteString("# Run Summary\n\n")
	fmt.Fprintf(&b, "**Goal:** %s\n\n", goal)

	completed := 0
	for _, a := range actions {
		if a.Status == schemas.StatusCompleted {
			completed++
		}
	}
	fmt.Fprintf(&b, "**Result:** %d/%d actions completed\n\n", completed, len(actions))

	b.WriteString("## Actions\n\n")
	if len(actions) == 0 {
		b.WriteString("_The goal produced no executable actions._\n")
	}
	for _, a := range actions {
		marker := "[ ]"
		if a.Status == schemas.StatusCompleted {
			marker = "[x]"
		}
		fmt.Fprintf(&b, "%d. %s %s (%s) — %s", a.Order+1, marker, a.Description, a.Kind, a.Status)
		if a.Reason != "" {
			fmt.Fprintf(&b, ": %s", a.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Log\n\n")
	for _, entry := range log {
		fmt.Fprintf(&b, "- `%s` **%s** %s", entry.Timestamp.UTC().Format("15:04:05.000"), entry.Status, entry.Action)
		if entry.Details != "" {
			fmt.Fprintf(&b, " — %s", entry.Details)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderScript emits a standalone chromedp program replaying the plan. The
// output is valid Go source; unresolved locators become quoted placeholders
// the user fills in before running it.
func renderScript(goal string, actions []schemas.Action) string {
	var b strings.Builder
	b.WriteString("// Replay script generated by webpilot-cli.\n")
	fmt.Fprintf(&b, "// Goal: %s\n", strings.ReplaceAll(goal, "\n", " "))
	b.WriteString(`package main

import (
	"context"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

func main() {
	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	err := chromedp.Run(ctx,
`)
	for _, a := range actions {
		fmt.Fprintf(&b, "\t\t// Step %d: %s\n", a.Order+1, a.Description)
		b.WriteString("\t\t" + scriptStep(a) + "\n")
	}
	b.WriteString(`	)
	if err != nil {
		log.Fatal(err)
	}
}
`)
	return b.String()
}

// scriptStep renders one action as a chromedp task expression.
func scriptStep(a schemas.Action) string {
	switch a.Kind {
	case schemas.ActionClick:
		return fmt.Sprintf("chromedp.Click(%s, chromedp.BySearch),", scriptLocator(a))
	case schemas.ActionType, schemas.ActionSelect:
		return fmt.Sprintf("chromedp.SendKeys(%s, %q, chromedp.BySearch),", scriptLocator(a), a.Value)
	case schemas.ActionWait:
		return fmt.Sprintf("chromedp.Sleep(%d*time.Millisecond),", waitMillis(a.Value))
	case schemas.ActionNavigate:
		return fmt.Sprintf("chromedp.Navigate(%q),", a.Value)
	case schemas.ActionScroll:
		return fmt.Sprintf("chromedp.Evaluate(`window.scrollBy(0, %g)`, nil),", scrollDelta(a.Value))
	default:
		return fmt.Sprintf("// unsupported action kind %q", a.Kind)
	}
}

// scriptLocator quotes the action's resolved locator, or a placeholder when
// resolution never happened or fell back to coordinates.
func scriptLocator(a schemas.Action) string {
	if a.Target != nil && a.Target.Locator != "" {
		return "`" + strings.ReplaceAll(a.Target.Locator, "`", "'") + "`"
	}
	desc := "element"
	if a.Target != nil && a.Target.Text != "" {
		desc = a.Target.Text
	}
	return fmt.Sprintf("`<selector for %s>`", strings.ReplaceAll(desc, "`", "'"))
}

// waitMillis parses an action value as milliseconds, defaulting to one second.
func waitMillis(value string) int {
	if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && ms > 0 {
		return ms
	}
	return 1000
}

// scrollDelta parses an action value as a vertical pixel delta, defaulting to
// most of one viewport height.
func scrollDelta(value string) float64 {
	if d, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && d != 0 {
		return d
	}
	return 600
}

// runLog is the persisted run-log document shape.
type runLog struct {
	Goal    string             `json:"goal"`
	Actions []schemas.Action   `json:"actions"`
	Log     []schemas.LogEntry `json:"log"`
}

// renderRunLog serializes the structured run log. Marshalling this document
// cannot fail: every field is a plain data type.
func renderRunLog(goal string, actions []schemas.Action, log []schemas.LogEntry) string {
	doc := runLog{Goal: goal, Actions: actions, Log: log}
	if doc.Actions == nil {
		doc.Actions = []schemas.Action{}
	}
	if doc.Log == nil {
		doc.Log = []schemas.LogEntry{}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"goal": %q, "error": %q}`, goal, err.Error())
	}
	return string(out)
}
