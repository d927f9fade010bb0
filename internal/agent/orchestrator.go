package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/tools"
)

const defaultMaxToolRounds = 20

var (
	// ErrTurnInProgress is returned when ProcessTurn is called while another
	// turn is running on the same orchestrator.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrRoundLimitExceeded ends a turn whose model kept requesting tools.
	ErrRoundLimitExceeded = errors.New("maximum tool rounds reached")
	// ErrCancelled ends a turn the operator interrupted.
	ErrCancelled = errors.New("turn cancelled")
)

// CancelledNotice is the notice emitted when a turn is interrupted.
const CancelledNotice = "Request cancelled."

// ToolExecutor runs tools on behalf of the model.
type ToolExecutor interface {
	Definitions() []llm.ToolDefinition
	Category(name string) tools.Category
	Execute(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// Approver decides which calls skip confirmation and records session-wide
// approvals.
type Approver interface {
	PreApproved(name string, category tools.Category, args json.RawMessage) bool
	Remember(category tools.Category)
}

// Recorder receives turn metrics.
type Recorder interface {
	TurnStarted()
	RoundStarted()
	ContentStreamed(chars int)
	ToolFinished(name, outcome string)
	TurnEnded(outcome string)
}

// TurnCompletedFunc is called after every turn with the messages the turn
// appended to history, in order.
type TurnCompletedFunc func(ctx context.Context, messages []llm.Message) error

// Config tunes the orchestrator.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxToolRounds int
	// LiveSearch enables the keyword-triggered provider search.
	LiveSearch      bool
	MaxOutputTokens int
	Temperature     float32
}

// Orchestrator drives user turns against one provider and owns the
// conversation history.
type Orchestrator struct {
	provider llm.Provider
	executor ToolExecutor
	approver Approver
	config   Config

	history []llm.Message
	running atomic.Bool

	debugLogger *llm.DebugLogger
	recorder    Recorder

	callbackMu      sync.RWMutex
	onTurnCompleted TurnCompletedFunc
}

// New creates an orchestrator whose history holds only the system prompt.
func New(provider llm.Provider, executor ToolExecutor, approver Approver, config Config) *Orchestrator {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = defaultMaxToolRounds
	}
	if approver == nil {
		approver = tools.NewApprover(nil, nil, false)
	}
	return &Orchestrator{
		provider: provider,
		executor: executor,
		approver: approver,
		config:   config,
		history:  []llm.Message{llm.SystemText(config.SystemPrompt)},
		recorder: nopRecorder{},
	}
}

// SetDebugLogger sets the wire logger.
func (o *Orchestrator) SetDebugLogger(logger *llm.DebugLogger) {
	o.debugLogger = logger
}

// SetRecorder sets the metrics recorder.
func (o *Orchestrator) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	o.recorder = r
}

// SetTurnCompletedCallback sets the callback used for session persistence.
func (o *Orchestrator) SetTurnCompletedCallback(cb TurnCompletedFunc) {
	o.callbackMu.Lock()
	o.onTurnCompleted = cb
	o.callbackMu.Unlock()
}

// LoadHistory replaces the conversation with a previously saved one. The
// configured system prompt is kept as element 0.
func (o *Orchestrator) LoadHistory(messages []llm.Message) error {
	if o.running.Load() {
		return ErrTurnInProgress
	}
	history := []llm.Message{llm.SystemText(o.config.SystemPrompt)}
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		history = append(history, msg)
	}
	o.history = history
	return nil
}

// History returns a copy of the conversation.
func (o *Orchestrator) History() []llm.Message {
	return append([]llm.Message(nil), o.history...)
}

// ProcessTurn runs one user turn: it streams model rounds, runs tools behind
// confirmation, and emits events to sink. Every path that starts a turn ends
// with a Done event. The final assistant text is returned on success;
// ErrCancelled and ErrRoundLimitExceeded report deliberate terminations and
// any other error is the provider failure that aborted the turn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, text string, attachments []llm.Attachment, cancel *CancelFlag, decisions <-chan Decision, sink Sink) (string, error) {
	if !o.running.CompareAndSwap(false, true) {
		return "", ErrTurnInProgress
	}
	defer o.running.Store(false)

	if cancel == nil {
		cancel = NewCancelFlag()
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	t := &turn{
		o:         o,
		ctx:       ctx,
		cancel:    cancel,
		decisions: decisions,
		sink:      sink,
		search:    o.config.LiveSearch && NeedsLiveSearch(text),
	}
	o.recorder.TurnStarted()

	user := llm.Message{Role: llm.RoleUser, Content: text}
	if len(attachments) > 0 {
		user.Attachments = append([]llm.Attachment(nil), attachments...)
	}
	t.append(user)

	result, err := t.run()
	t.finish(err)
	return result, err
}

// turn is the state of one ProcessTurn call.
type turn struct {
	o         *Orchestrator
	ctx       context.Context
	cancel    *CancelFlag
	decisions <-chan Decision
	sink      Sink
	search    bool

	appended []llm.Message
}

func (t *turn) append(msg llm.Message) {
	t.o.history = append(t.o.history, msg)
	t.appended = append(t.appended, msg)
}

func (t *turn) run() (string, error) {
	o := t.o
	for round := 0; round < o.config.MaxToolRounds; round++ {
		if t.cancelled() {
			return "", ErrCancelled
		}
		o.recorder.RoundStarted()
		slog.Debug("starting round", "round", round, "messages", len(o.history), "search", t.search)

		content, calls, err := t.stream(round)
		if err != nil {
			return "", err
		}

		calls = sanitizeArguments(calls)
		t.append(llm.AssistantMessage(content, calls))
		if len(calls) == 0 {
			return content, nil
		}

		t.sink.Emit(Event{Kind: EventToolCalls, ToolCalls: append([]llm.ToolCall(nil), calls...)})
		for i, call := range calls {
			if err := t.runTool(call); err != nil {
				t.skipRemaining(calls[i:])
				return "", err
			}
			if t.cancelled() {
				t.skipRemaining(calls[i+1:])
				return "", ErrCancelled
			}
		}
	}
	return "", ErrRoundLimitExceeded
}

// stream issues one request and folds its chunks into content and tool
// calls. Nothing is appended to history here.
func (t *turn) stream(round int) (string, []llm.ToolCall, error) {
	o := t.o
	req := llm.Request{
		Model:           o.config.Model,
		Messages:        append([]llm.Message(nil), o.history...),
		Tools:           o.executor.Definitions(),
		Search:          t.search,
		MaxOutputTokens: o.config.MaxOutputTokens,
		Temperature:     o.config.Temperature,
	}
	o.debugLogger.LogRequest(round, o.provider.Name(), req)

	ctx, stop := t.cancel.Context(t.ctx)
	defer stop()

	stream, err := o.provider.Stream(ctx, req)
	if err != nil {
		if t.cancelled() {
			return "", nil, ErrCancelled
		}
		return "", nil, err
	}
	defer stream.Close()

	var content string
	var acc llm.ToolCallAccumulator
	tokens := 0
	for {
		if t.cancelled() {
			return "", nil, ErrCancelled
		}
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if t.cancelled() {
				return "", nil, ErrCancelled
			}
			return "", nil, err
		}
		o.debugLogger.LogChunk(chunk)

		if emitted := llm.MergeText(&content, chunk.Content); emitted != "" {
			t.sink.Emit(Event{Kind: EventContent, Text: emitted})
			o.recorder.ContentStreamed(utf8.RuneCountInString(emitted))
		}
		acc.AddChunk(chunk)

		chars := utf8.RuneCountInString(content) + acc.CharCount()
		if n := (chars + 3) / 4; n != tokens {
			tokens = n
			t.sink.Emit(Event{Kind: EventTokenCount, Tokens: n})
		}
	}
	return content, acc.Finalize(), nil
}

// runTool confirms and executes one call, committing its result to history.
func (t *turn) runTool(call llm.ToolCall) error {
	o := t.o
	category := o.executor.Category(call.Name)
	args := call.RawArguments()

	if category.RequiresConfirmation() && !o.approver.PreApproved(call.Name, category, args) {
		t.sink.Emit(Event{Kind: EventConfirmationRequest, ToolCall: call, Category: category})
		decision, err := waitForDecision(t.ctx, call.ID, t.decisions, t.cancel)
		if err != nil {
			return err
		}
		if !decision.Approved {
			slog.Debug("tool call rejected", "tool", call.Name, "id", call.ID)
			t.commitResult(call, rejectedResult(decision.Feedback), "rejected")
			return nil
		}
		if decision.RememberForSession {
			o.approver.Remember(category)
		}
	}

	ctx, stop := t.cancel.Context(t.ctx)
	defer stop()
	res := o.executor.Execute(ctx, call.Name, args)
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	slog.Debug("tool finished", "tool", call.Name, "id", call.ID, "success", res.Success)
	t.commitResult(call, res, outcome)
	return nil
}

func (t *turn) commitResult(call llm.ToolCall, res tools.Result, outcome string) {
	t.append(llm.ToolResultMessage(call.ID, res.Text()))
	t.o.recorder.ToolFinished(call.Name, outcome)
	t.sink.Emit(Event{Kind: EventToolResult, ToolCall: call, Result: res})
}

// skipRemaining answers calls that will not run so every tool call in
// history keeps a matching result.
func (t *turn) skipRemaining(calls []llm.ToolCall) {
	for _, call := range calls {
		t.append(llm.ToolResultMessage(call.ID, rejectedResult("").Text()))
	}
}

func (t *turn) cancelled() bool {
	return t.cancel.IsSet() || t.ctx.Err() != nil
}

// finish emits the terminal events and reports the turn.
func (t *turn) finish(err error) {
	o := t.o
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		outcome = "cancelled"
		t.sink.Emit(Event{Kind: EventNotice, Text: CancelledNotice})
	case errors.Is(err, ErrRoundLimitExceeded):
		outcome = "round_limit"
		slog.Warn("turn stopped at round limit", "max_tool_rounds", o.config.MaxToolRounds)
		t.sink.Emit(Event{Kind: EventNotice, Text: ErrRoundLimitExceeded.Error()})
	default:
		outcome = abortKind(err)
		slog.Warn("turn aborted", "kind", outcome, "error", err)
		o.debugLogger.LogError(err)
		t.sink.Emit(Event{Kind: EventError, Text: err.Error()})
	}
	o.recorder.TurnEnded(outcome)
	o.debugLogger.LogDone()
	t.sink.Emit(Event{Kind: EventDone})

	o.callbackMu.RLock()
	cb := o.onTurnCompleted
	o.callbackMu.RUnlock()
	if cb != nil && len(t.appended) > 0 {
		// The turn context may already be cancelled; persistence still runs.
		if cbErr := cb(context.WithoutCancel(t.ctx), t.appended); cbErr != nil {
			slog.Warn("turn completed callback failed", "error", cbErr)
		}
	}
}

func abortKind(err error) string {
	switch {
	case llm.IsTransport(err):
		return "transport"
	case llm.IsProtocol(err):
		return "protocol"
	case llm.IsUpstream(err):
		return "upstream"
	}
	return "error"
}

// sanitizeArguments replaces argument strings that are not valid JSON with
// an empty object so the tool reports the problem itself.
func sanitizeArguments(calls []llm.ToolCall) []llm.ToolCall {
	for i, call := range calls {
		if call.Arguments == "" || json.Valid([]byte(call.Arguments)) {
			continue
		}
		slog.Warn("substituting empty arguments", "error", &llm.ToolArgumentError{CallID: call.ID, Name: call.Name, Arguments: call.Arguments})
		calls[i].Arguments = "{}"
	}
	return calls
}

type nopRecorder struct{}

func (nopRecorder) TurnStarted()                {}
func (nopRecorder) RoundStarted()               {}
func (nopRecorder) ContentStreamed(int)         {}
func (nopRecorder) ToolFinished(string, string) {}
func (nopRecorder) TurnEnded(string)            {}
