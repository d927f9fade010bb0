package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/samsaffron/term-agent/internal/llm"
)

// Store is the interface for session persistence.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	// Listing and search
	List(ctx context.Context, opts ListOptions) ([]SessionSummary, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Messages are stored as full llm.Message JSON so tool calls round-trip.
	AppendMessages(ctx context.Context, sessionID string, msgs []llm.Message) error
	GetMessages(ctx context.Context, sessionID string, limit, offset int) ([]Message, error)

	UpdateMetrics(ctx context.Context, id string, llmTurns, toolCalls int) error
	UpdateStatus(ctx context.Context, id string, status SessionStatus) error
	IncrementUserTurns(ctx context.Context, id string) error

	// Current session tracking (for --resume last)
	SetCurrent(ctx context.Context, sessionID string) error
	GetCurrent(ctx context.Context) (*Session, error)

	Close() error
}

// Config holds session storage configuration.
type Config struct {
	Enabled    bool
	Path       string // sqlite file
	MaxAgeDays int    // Auto-delete after N days (0=never)
	MaxCount   int    // Keep at most N sessions (0=unlimited)
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// NewStore creates a new Store based on the configuration.
// If sessions are disabled, returns a no-op store.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return &NoopStore{}, nil
	}
	return NewSQLiteStore(cfg)
}

// LoadHistory returns the stored conversation for a session in order.
func LoadHistory(ctx context.Context, store Store, sessionID string) ([]llm.Message, error) {
	msgs, err := store.GetMessages(ctx, sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, m.ToLLMMessage())
	}
	return history, nil
}
