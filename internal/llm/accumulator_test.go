package llm

import "testing"

func TestToolCallAccumulatorOutOfOrder(t *testing.T) {
	var acc ToolCallAccumulator
	acc.Add(ToolCallDelta{Index: 2, ID: "call_c", Name: "shell", Arguments: `{"command":"ls"}`})
	acc.Add(ToolCallDelta{Index: 0, Name: "read_file", Arguments: `{"path":"a.go"}`})

	if acc.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", acc.Len())
	}

	calls := acc.Finalize()
	if len(calls) != 2 {
		t.Fatalf("Finalize() returned %d calls, want 2: %+v", len(calls), calls)
	}
	if calls[0].ID != "call_0" || calls[0].Name != "read_file" {
		t.Errorf("calls[0] = %+v, want synthetic id call_0 for read_file", calls[0])
	}
	if calls[1].ID != "call_c" || calls[1].Name != "shell" || calls[1].Arguments != `{"command":"ls"}` {
		t.Errorf("calls[1] = %+v", calls[1])
	}
}

func TestToolCallAccumulatorFragments(t *testing.T) {
	var acc ToolCallAccumulator
	acc.AddChunk(ChunkEvent{ToolCallDeltas: []ToolCallDelta{{Index: 0, ID: "call_abc", Name: "shell"}}})
	acc.AddChunk(ChunkEvent{ToolCallDeltas: []ToolCallDelta{{Index: 0, Arguments: `{"command":`}}})
	acc.AddChunk(ChunkEvent{ToolCallDeltas: []ToolCallDelta{{Index: 0, Arguments: `"ls"}`}}})
	// Some providers resend the id and name with every fragment.
	acc.AddChunk(ChunkEvent{ToolCallDeltas: []ToolCallDelta{{Index: 0, ID: "call_abc", Name: "shell"}}})

	calls := acc.Finalize()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	want := ToolCall{ID: "call_abc", Name: "shell", Arguments: `{"command":"ls"}`}
	if calls[0] != want {
		t.Errorf("call = %+v, want %+v", calls[0], want)
	}
}

func TestToolCallAccumulatorSnapshots(t *testing.T) {
	var acc ToolCallAccumulator
	acc.Add(ToolCallDelta{Index: 0, Name: "edit_file", Arguments: `{"path":`})
	acc.Add(ToolCallDelta{Index: 0, Name: "edit_file", Arguments: `{"path":"x.go"}`})
	acc.Add(ToolCallDelta{Index: 0, Name: "edit_file", Arguments: `{"path":"x.go"}`})

	calls := acc.Finalize()
	if len(calls) != 1 || calls[0].Arguments != `{"path":"x.go"}` {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestToolCallAccumulatorDropsNamelessSlots(t *testing.T) {
	var acc ToolCallAccumulator
	acc.Add(ToolCallDelta{Index: 0, ID: "call_x", Arguments: `{}`})
	acc.Add(ToolCallDelta{Index: 1, Name: "   "})
	acc.Add(ToolCallDelta{Index: -1, Name: "ignored"})
	acc.Add(ToolCallDelta{Index: MaxToolCallIndex + 1, Name: "ignored"})
	acc.Add(ToolCallDelta{Index: 1 << 30, Name: "ignored"})

	if calls := acc.Finalize(); len(calls) != 0 {
		t.Errorf("Finalize() = %+v, want no calls", calls)
	}
	if acc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", acc.Len())
	}
}

func TestToolCallAccumulatorCharCountAndReset(t *testing.T) {
	var acc ToolCallAccumulator
	acc.Add(ToolCallDelta{Index: 0, Name: "ls", Arguments: `{"é":1}`})
	if got := acc.CharCount(); got != 2+7 {
		t.Errorf("CharCount() = %d, want 9", got)
	}
	acc.Reset()
	if acc.Len() != 0 || acc.CharCount() != 0 {
		t.Errorf("Reset left %d slots", acc.Len())
	}
}
