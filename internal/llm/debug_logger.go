package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes requests and streamed chunks to a JSONL file per
// session. A nil *DebugLogger is valid and logs nothing.
type DebugLogger struct {
	baseDir   string
	sessionID string
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	closeOnce sync.Once
	closed    bool
}

type debugLogEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // "session_start", "request", "chunk", "error" or "done"
}

type debugSessionStartEntry struct {
	debugLogEntry
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

type debugRequestEntry struct {
	debugLogEntry
	Round    int              `json:"round"`
	Provider string           `json:"provider"`
	Model    string           `json:"model"`
	Request  debugRequestData `json:"request"`
}

type debugRequestData struct {
	Messages        []debugMessage `json:"messages"`
	Tools           []string       `json:"tools,omitempty"`
	Search          bool           `json:"search,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
}

type debugMessage struct {
	Role        string     `json:"role"`
	Content     string     `json:"content,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID  string     `json:"tool_call_id,omitempty"`
}

type debugChunkEntry struct {
	debugLogEntry
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

type debugErrorEntry struct {
	debugLogEntry
	Error string `json:"error"`
}

// NewDebugLogger opens <baseDir>/<sessionID>.jsonl for appending.
// Log files older than seven days are removed.
func NewDebugLogger(baseDir, sessionID string) (*DebugLogger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	_ = CleanupOldLogs(baseDir, 7*24*time.Hour)

	filename := filepath.Join(baseDir, sessionID+".jsonl")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &DebugLogger{
		baseDir:   baseDir,
		sessionID: sessionID,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

// Path returns the log file path.
func (l *DebugLogger) Path() string {
	if l == nil {
		return ""
	}
	return filepath.Join(l.baseDir, l.sessionID+".jsonl")
}

// LogSessionStart logs the CLI invocation that started the session.
func (l *DebugLogger) LogSessionStart(command string, args []string, cwd string) {
	if l == nil {
		return
	}
	l.writeEntry(debugSessionStartEntry{
		debugLogEntry: l.entry("session_start"),
		Command:       command,
		Args:          args,
		Cwd:           cwd,
	})
	l.Flush()
}

// LogRequest logs the request issued for one round.
func (l *DebugLogger) LogRequest(round int, provider string, req Request) {
	if l == nil {
		return
	}
	data := debugRequestData{
		Messages:        convertMessages(req.Messages),
		Search:          req.Search,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	for _, tool := range req.Tools {
		data.Tools = append(data.Tools, tool.Function.Name)
	}
	l.writeEntry(debugRequestEntry{
		debugLogEntry: l.entry("request"),
		Round:         round,
		Provider:      provider,
		Model:         req.Model,
		Request:       data,
	})
	// Requests are infrequent; flush so a crash mid-stream still has them.
	l.Flush()
}

// LogChunk logs one normalized chunk as received from the adapter.
func (l *DebugLogger) LogChunk(chunk ChunkEvent) {
	if l == nil {
		return
	}
	l.writeEntry(debugChunkEntry{
		debugLogEntry: l.entry("chunk"),
		Content:       chunk.Content,
		ToolCalls:     chunk.ToolCallDeltas,
	})
}

// LogError logs a stream failure and flushes.
func (l *DebugLogger) LogError(err error) {
	if l == nil || err == nil {
		return
	}
	l.writeEntry(debugErrorEntry{debugLogEntry: l.entry("error"), Error: err.Error()})
	l.Flush()
}

// LogDone marks the end of a stream and flushes.
func (l *DebugLogger) LogDone() {
	if l == nil {
		return
	}
	l.writeEntry(l.entry("done"))
	l.Flush()
}

// Close flushes and closes the file. It is safe to call more than once.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}

	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.file == nil {
			return
		}
		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

// Flush flushes buffered entries to disk.
func (l *DebugLogger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.writer == nil {
		return
	}
	l.writer.Flush()
}

func (l *DebugLogger) entry(kind string) debugLogEntry {
	return debugLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Type:      kind,
	}
}

// writeEntry writes one JSON line without flushing.
func (l *DebugLogger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.WriteString("\n")
}

func convertMessages(messages []Message) []debugMessage {
	result := make([]debugMessage, len(messages))
	for i, msg := range messages {
		dm := debugMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		}
		for _, att := range msg.Attachments {
			dm.Attachments = append(dm.Attachments, fmt.Sprintf("[%s %s len=%d]", att.Name, att.MediaType, len(att.Data)))
		}
		result[i] = dm
	}
	return result
}

// CleanupOldLogs removes .jsonl files in baseDir older than maxAge.
func CleanupOldLogs(baseDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(baseDir, entry.Name()))
		}
	}
	return nil
}
