package ui

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/samsaffron/term-agent/internal/agent"
)

// Printer renders turn events to a terminal and answers confirmation
// requests through a Prompter.
type Printer struct {
	out       io.Writer
	styles    *Styles
	prompter  Prompter
	decisions chan<- agent.Decision

	// Markdown buffers content and renders it with glamour when the turn ends.
	Markdown bool
	// ShowTokens prints the output token estimate after the turn.
	ShowTokens bool
	Width      int

	content  strings.Builder
	midLine  bool
	tokens   int
	failures int

	renderer      *glamour.TermRenderer
	rendererWidth int
}

// NewPrinter creates a printer. decisions receives one decision per
// confirmation request and should be buffered.
func NewPrinter(out io.Writer, styles *Styles, prompter Prompter, decisions chan<- agent.Decision) *Printer {
	return &Printer{
		out:       out,
		styles:    styles,
		prompter:  prompter,
		decisions: decisions,
		Width:     defaultWidth,
	}
}

// Run consumes events until Done or until the channel closes.
func (p *Printer) Run(events <-chan agent.Event) {
	for ev := range events {
		p.Handle(ev)
		if ev.Kind == agent.EventDone {
			return
		}
	}
}

// Handle renders a single event.
func (p *Printer) Handle(ev agent.Event) {
	switch ev.Kind {
	case agent.EventContent:
		if p.Markdown {
			p.content.WriteString(ev.Text)
			return
		}
		fmt.Fprint(p.out, ev.Text)
		p.midLine = !strings.HasSuffix(ev.Text, "\n")

	case agent.EventTokenCount:
		p.tokens = ev.Tokens

	case agent.EventToolCalls:
		p.flushContent()
		for _, call := range ev.ToolCalls {
			args := Preview(call.Arguments, p.Width-len(call.Name)-6)
			p.line(p.styles.Command.Render(ToolIcon+" "+call.Name) + " " + p.styles.Muted.Render(args))
		}

	case agent.EventConfirmationRequest:
		p.flushContent()
		req := ConfirmRequest{Call: ev.ToolCall, Category: ev.Category}
		decision, err := p.prompter.Confirm(req)
		if err != nil {
			slog.Warn("confirmation prompt failed", "tool", ev.ToolCall.Name, "error", err)
			decision = agent.Reject(ev.ToolCall.ID, "")
		}
		p.decisions <- decision

	case agent.EventToolResult:
		p.printResult(ev)

	case agent.EventNotice:
		p.flushContent()
		p.line(p.styles.Warning.Render(ev.Text))

	case agent.EventError:
		p.flushContent()
		p.line(p.styles.Error.Render("Error: " + ev.Text))

	case agent.EventDone:
		p.flushContent()
		if p.ShowTokens && p.tokens > 0 {
			p.line(p.styles.Muted.Render(fmt.Sprintf("~%d tokens", p.tokens)))
		}
		p.tokens = 0
	}
}

// Failures returns the number of failed tool results printed so far.
func (p *Printer) Failures() int {
	return p.failures
}

func (p *Printer) printResult(ev agent.Event) {
	res := ev.Result
	name := ev.ToolCall.Name
	if !res.Success {
		p.failures++
		msg := name + ": " + Preview(res.Error, p.Width-len(name)-6)
		p.line("  " + p.styles.FormatResult(false, msg))
		if res.Output != "" {
			p.line("    " + p.styles.Muted.Render(Preview(res.Output, p.Width-6)))
		}
		return
	}

	if LooksLikeDiff(res.Output) {
		p.line("  " + p.styles.FormatResult(true, name+": "+FirstLine(res.Output)))
		if idx := strings.Index(res.Output, "--- "); idx >= 0 {
			p.line(ColorizeDiff(p.styles, res.Output[idx:]))
		}
		return
	}
	summary := Preview(FirstLine(res.Output), p.Width-len(name)-6)
	p.line("  " + p.styles.FormatResult(true, name+": "+p.styles.Muted.Render(summary)))
}

// flushContent ends a partial content line, or renders buffered markdown.
func (p *Printer) flushContent() {
	if p.Markdown {
		if p.content.Len() > 0 {
			fmt.Fprintln(p.out, p.renderMarkdown(p.content.String()))
			p.content.Reset()
		}
		return
	}
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}

func (p *Printer) line(s string) {
	fmt.Fprintln(p.out, s)
}
