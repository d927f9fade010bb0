package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/tools"
)

// ConfirmRequest describes a tool call waiting for the operator.
type ConfirmRequest struct {
	Call     llm.ToolCall
	Category tools.Category
}

// Description is the one-line question shown to the operator.
func (r ConfirmRequest) Description() string {
	if r.Call.Name == tools.ShellToolName {
		return "Run: " + tools.CommandPreview(r.Call.RawArguments())
	}
	return fmt.Sprintf("Allow %s %s", r.Call.Name, Preview(r.Call.Arguments, 60))
}

// Prompter asks the operator to approve or reject a tool call.
type Prompter interface {
	Confirm(req ConfirmRequest) (agent.Decision, error)
}

// NewPrompter returns a huh form prompter when in is a terminal and a line
// prompter otherwise.
func NewPrompter(in *os.File, out io.Writer) Prompter {
	if IsTerminal(in) {
		return &HuhPrompter{}
	}
	return NewLinePrompter(in, out)
}

const (
	choiceYes      = "yes"
	choiceAlways   = "always"
	choiceNo       = "no"
	choiceFeedback = "feedback"
)

// HuhPrompter asks with an interactive select form.
type HuhPrompter struct{}

func (p *HuhPrompter) Confirm(req ConfirmRequest) (agent.Decision, error) {
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(req.Description()).
				Options(
					huh.NewOption("Yes", choiceYes),
					huh.NewOption(fmt.Sprintf("Yes, allow %s for this session", req.Category), choiceAlways),
					huh.NewOption("No", choiceNo),
					huh.NewOption("No, and tell the model why", choiceFeedback),
				).
				Value(&choice),
		),
	).WithShowHelp(false)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return agent.Reject(req.Call.ID, ""), nil
		}
		return agent.Decision{}, err
	}

	switch choice {
	case choiceYes:
		return agent.Approve(req.Call.ID, false), nil
	case choiceAlways:
		return agent.Approve(req.Call.ID, true), nil
	case choiceFeedback:
		var feedback string
		err := huh.NewInput().
			Title("Feedback").
			Value(&feedback).
			Run()
		if err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return agent.Decision{}, err
		}
		return agent.Reject(req.Call.ID, strings.TrimSpace(feedback)), nil
	default:
		return agent.Reject(req.Call.ID, ""), nil
	}
}

// LinePrompter reads y/a/n/f answers line by line. It is used when stdin is
// piped.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Confirm(req ConfirmRequest) (agent.Decision, error) {
	for {
		fmt.Fprintf(p.out, "%s [y]es/[a]lways/[n]o/[f]eedback: ", req.Description())
		line, err := p.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if err != nil && answer == "" {
			// No more input.
			fmt.Fprintln(p.out)
			return agent.Reject(req.Call.ID, ""), nil
		}

		switch answer {
		case "y", "yes":
			return agent.Approve(req.Call.ID, false), nil
		case "a", "always":
			return agent.Approve(req.Call.ID, true), nil
		case "n", "no":
			return agent.Reject(req.Call.ID, ""), nil
		case "f", "feedback":
			fmt.Fprint(p.out, "Feedback: ")
			feedback, _ := p.in.ReadString('\n')
			return agent.Reject(req.Call.ID, strings.TrimSpace(feedback)), nil
		}
		if err != nil {
			return agent.Reject(req.Call.ID, ""), nil
		}
	}
}
