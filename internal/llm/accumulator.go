package llm

import (
	"fmt"
	"strings"
)

// PendingToolCall is a tool call still being assembled from stream fragments.
type PendingToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// MaxToolCallIndex bounds the slot index a stream may address.
const MaxToolCallIndex = 1024

// ToolCallAccumulator collects indexed tool-call fragments for one round.
// Fragments may arrive in any index order; unused slots are dropped when the
// round is finalized.
type ToolCallAccumulator struct {
	slots []PendingToolCall
}

// Add folds a single fragment into the slot at delta.Index.
// Indices outside [0, MaxToolCallIndex] are ignored.
func (a *ToolCallAccumulator) Add(delta ToolCallDelta) {
	if delta.Index < 0 || delta.Index > MaxToolCallIndex {
		return
	}
	for len(a.slots) <= delta.Index {
		a.slots = append(a.slots, PendingToolCall{})
	}
	slot := &a.slots[delta.Index]
	// Ids are sent whole; a repeated id is the same value, not a continuation.
	if delta.ID != "" && delta.ID != slot.ID {
		slot.ID += delta.ID
	}
	MergeField(&slot.Name, delta.Name)
	MergeField(&slot.Arguments, delta.Arguments)
}

// AddChunk folds every tool-call fragment of a chunk.
func (a *ToolCallAccumulator) AddChunk(chunk ChunkEvent) {
	for _, delta := range chunk.ToolCallDeltas {
		a.Add(delta)
	}
}

// Len returns the number of slots, including ones that will be dropped.
func (a *ToolCallAccumulator) Len() int {
	return len(a.slots)
}

// CharCount returns the number of characters buffered across all slots.
func (a *ToolCallAccumulator) CharCount() int {
	n := 0
	for _, slot := range a.slots {
		n += len([]rune(slot.Name)) + len([]rune(slot.Arguments))
	}
	return n
}

// Finalize returns the completed calls in index order. Slots without an id
// get a synthetic call_<index>; slots without a name are discarded.
func (a *ToolCallAccumulator) Finalize() []ToolCall {
	var calls []ToolCall
	for i, slot := range a.slots {
		if strings.TrimSpace(slot.Name) == "" {
			continue
		}
		id := slot.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		calls = append(calls, ToolCall{ID: id, Name: slot.Name, Arguments: slot.Arguments})
	}
	return calls
}

// Reset clears all slots for the next round.
func (a *ToolCallAccumulator) Reset() {
	a.slots = nil
}

func checkToolCallIndex(format string, index int) error {
	if index < 0 || index > MaxToolCallIndex {
		return &ProtocolError{Format: format, Detail: fmt.Sprintf("tool call index %d out of range", index)}
	}
	return nil
}
