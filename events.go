package authclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventLogin          EventType = "login"
	EventRegister       EventType = "register"
	EventRefresh        EventType = "refresh"
	EventLogout         EventType = "logout"
	EventSessionExpired EventType = "session_expired"
	EventRequestRetried EventType = "request_retried"
)

// Event is a lifecycle notification. It never carries token values; Error is a stable code
// such as "refresh_rejected", never a server message.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Username  string    `json:"username,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	// Method, Path and Status describe the protected request behind session_expired and
	// request_retried events.
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
	Status int    `json:"status,omitempty"`
}

func requestEvent(typ EventType, method, path string, status int) Event {
	return Event{Type: typ, Method: method, Path: path, Status: status}
}

// EventSink receives events on the dispatcher goroutine. ctx is cancelled when the client is
// closing and the drain budget is spent; a sink that can block should honor it.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriterSink returns a sink writing to w. Writes are serialized.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// LogSink records events through a structured logger. Session expiry is logged at warn level,
// everything else at info.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger; nil discards.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = discardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if event.Type == EventSessionExpired {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event", string(event.Type)),
		slog.Bool("success", event.Success),
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("method", event.Method), slog.String("path", event.Path))
	}
	s.logger.LogAttrs(context.WithoutCancel(ctx), level, "session event", attrs...)
}
