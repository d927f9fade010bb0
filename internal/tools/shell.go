package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// ShellTool runs a command through the user's shell in the session working
// directory.
type ShellTool struct {
	limits  OutputLimits
	timeout time.Duration
	shell   string
}

// ShellArgs are the arguments for the shell tool.
type ShellArgs struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

func (t *ShellTool) Name() string       { return ShellToolName }
func (t *ShellTool) Category() Category { return CategoryShellOp }

func (t *ShellTool) Description() string {
	return "Execute a shell command in the working directory. Returns stdout, stderr and the exit code. Use change_directory to move between directories."
}

func (t *ShellTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"command"}, map[string]*jsonschema.Schema{
		"command":         stringProp("Shell command to execute"),
		"timeout_seconds": integerProp("Command timeout in seconds"),
	})
}

// CommandPreview extracts the command from shell arguments for display and
// allow-list matching.
func CommandPreview(args json.RawMessage) string {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.Command
}

func (t *ShellTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a ShellArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Command) == "" {
		return "", NewToolError(ErrInvalidParams, "command is required")
	}

	timeout := t.timeout
	if a.TimeoutSeconds > 0 {
		timeout = min(time.Duration(a.TimeoutSeconds)*time.Second, 10*time.Minute)
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, t.detectShell(), "-c", a.Command)
	cmd.Dir = st.Cwd()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ShellResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return formatShellResult(result, t.limits), NewToolErrorf(ErrTimeout, "command timed out after %s", timeout)
	}
	if ctx.Err() != nil {
		return formatShellResult(result, t.limits), ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", NewToolErrorf(ErrExecutionFailed, "command error: %v", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	output := formatShellResult(result, t.limits)
	if result.ExitCode != 0 {
		return output, NewToolErrorf(ErrExecutionFailed, "command exited with status %d", result.ExitCode)
	}
	return output, nil
}

func formatShellResult(result ShellResult, limits OutputLimits) string {
	var sb strings.Builder

	stdout := result.Stdout
	stderr := result.Stderr
	truncated := false
	if int64(len(stdout)) > limits.MaxBytes {
		stdout = stdout[:limits.MaxBytes]
		truncated = true
	}
	if int64(len(stderr)) > limits.MaxBytes {
		stderr = stderr[:limits.MaxBytes]
		truncated = true
	}

	if result.TimedOut {
		sb.WriteString("[Command timed out]\n\n")
	}
	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\nexit_code: %d", result.ExitCode)
	if truncated {
		sb.WriteString("\n\n[Output truncated due to size limit]")
	}
	return sb.String()
}

// detectShell returns the configured shell, then $SHELL, then bash.
func (t *ShellTool) detectShell() string {
	if t.shell != "" {
		return t.shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "bash"
}
