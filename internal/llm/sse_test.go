package llm

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSSEDecoderRecords(t *testing.T) {
	input := "event: first\r\ndata: a\r\ndata: b\r\n\r\n" +
		": keep-alive\n\n" +
		"data: {\"x\":1}\n\n" +
		"event: last\ndata: tail"

	dec := newSSEDecoder(iotest.OneByteReader(strings.NewReader(input)))
	want := []sseRecord{
		{Event: "first", Data: "a\nb"},
		{Data: `{"x":1}`},
		{Event: "last", Data: "tail"},
	}
	for i, w := range want {
		rec, err := dec.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if rec != w {
			t.Errorf("record %d = %+v, want %+v", i, rec, w)
		}
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after last record, got %v", err)
	}
}

func TestLineReaderPartialReads(t *testing.T) {
	lines := newLineReader(iotest.HalfReader(strings.NewReader("data: one\ndata: two\r\nlast")))
	var got []string
	for {
		line, err := lines.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("Next: %v", err)
			}
			break
		}
		got = append(got, line)
	}
	want := []string{"data: one", "data: two", "last"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestDataPayload(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"data: [DONE]", "[DONE]", true},
		{"data:{}", "{}", true},
		{"event: x", "", false},
		{": comment", "", false},
	}
	for _, tc := range tests {
		got, ok := dataPayload(tc.line)
		if got != tc.want || ok != tc.ok {
			t.Errorf("dataPayload(%q) = %q, %v; want %q, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}
