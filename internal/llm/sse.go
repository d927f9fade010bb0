package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseRecord is one server-sent event: an optional event name and the data
// lines joined by newlines.
type sseRecord struct {
	Event string
	Data  string
}

// lineReader yields complete lines from a byte stream. A network read may end
// in the middle of a line; the partial line is kept until its newline arrives.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next line without its trailing "\n" or "\r\n".
// A final unterminated line is returned before io.EOF.
func (l *lineReader) Next() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// sseDecoder implements generic SSE framing: "event:" and "data:" fields
// accumulate until a blank line terminates the record.
type sseDecoder struct {
	lines *lineReader
	event string
	data  []string
	eof   bool
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{lines: newLineReader(r)}
}

// Next returns the next complete record, or io.EOF once the stream and any
// pending record are exhausted.
func (d *sseDecoder) Next() (sseRecord, error) {
	for !d.eof {
		line, err := d.lines.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return sseRecord{}, err
			}
			d.eof = true
			break
		}
		if line == "" {
			if rec, ok := d.take(); ok {
				return rec, nil
			}
			continue
		}
		d.field(line)
	}
	if rec, ok := d.take(); ok {
		return rec, nil
	}
	return sseRecord{}, io.EOF
}

func (d *sseDecoder) field(line string) {
	if strings.HasPrefix(line, ":") {
		return
	}
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch name {
	case "event":
		d.event = value
	case "data":
		d.data = append(d.data, value)
	}
}

func (d *sseDecoder) take() (sseRecord, bool) {
	if d.event == "" && len(d.data) == 0 {
		return sseRecord{}, false
	}
	rec := sseRecord{Event: d.event, Data: strings.Join(d.data, "\n")}
	d.event = ""
	d.data = d.data[:0]
	return rec, true
}

// dataPayload extracts the payload of a "data:" line, reporting false for
// any other line.
func dataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "), true
}
