package agent

import (
	"sync"

	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/tools"
)

// EventKind identifies the type of turn event.
type EventKind string

const (
	EventContent             EventKind = "content"
	EventTokenCount          EventKind = "token_count"
	EventConfirmationRequest EventKind = "confirmation_request"
	EventToolCalls           EventKind = "tool_calls"
	EventToolResult          EventKind = "tool_result"
	EventNotice              EventKind = "notice"
	EventError               EventKind = "error"
	EventDone                EventKind = "done"
)

// Event is one observable step of a turn. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind EventKind

	// Text is the content fragment, notice or error message.
	Text string
	// Tokens is the running output token estimate (TokenCount).
	Tokens int

	// ToolCall is set for ConfirmationRequest and ToolResult.
	ToolCall llm.ToolCall
	Category tools.Category
	Result   tools.Result

	// ToolCalls lists the calls of a round (ToolCalls).
	ToolCalls []llm.ToolCall
}

// Sink receives turn events. Emit must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// EventChannel is an ordered, unbounded queue of events with a single
// consumer. Emit never blocks and never fails; once the consumer detaches,
// events are dropped.
type EventChannel struct {
	mu       sync.Mutex
	queue    []Event
	closed   bool
	detached bool

	wake chan struct{}
	gone chan struct{}
	out  chan Event
}

// NewEventChannel starts the delivery goroutine.
func NewEventChannel() *EventChannel {
	c := &EventChannel{
		wake: make(chan struct{}, 1),
		gone: make(chan struct{}),
		out:  make(chan Event),
	}
	go c.pump()
	return c
}

// Emit queues ev for delivery.
func (c *EventChannel) Emit(ev Event) {
	c.mu.Lock()
	if c.closed || c.detached {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	c.notify()
}

// Events returns the receive side. It is closed after Close once every
// queued event was delivered, or right after Detach.
func (c *EventChannel) Events() <-chan Event {
	return c.out
}

// Close stops accepting events. Already queued events are still delivered.
func (c *EventChannel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.notify()
}

// Detach signals that the consumer went away. Queued and future events are
// discarded.
func (c *EventChannel) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return
	}
	c.detached = true
	c.queue = nil
	close(c.gone)
}

func (c *EventChannel) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *EventChannel) pump() {
	defer close(c.out)
	for {
		c.mu.Lock()
		if c.detached {
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-c.wake:
			case <-c.gone:
			}
			continue
		}
		ev := c.queue[0]
		c.queue[0] = Event{}
		c.queue = c.queue[1:]
		c.mu.Unlock()

		select {
		case c.out <- ev:
		case <-c.gone:
			return
		}
	}
}
