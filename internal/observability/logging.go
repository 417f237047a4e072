// Package observability provides metrics, tracing and per-component loggers.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// GlobalLogger backs the component loggers below. main replaces it with the
// context-aware request logger so component records carry request ids too.
var GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger swaps GlobalLogger. A nil logger is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

// RepoLogger tags store writes with the table or collection they touched.
// Writes log at debug and failures at error.
type RepoLogger struct {
	table string
}

func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

// Wrote records a successful write. attrs are slog key/value pairs.
func (l *RepoLogger) Wrote(ctx context.Context, op string, attrs ...any) {
	GlobalLogger.DebugContext(ctx, "store write",
		append([]any{slog.String("table", l.table), slog.String("op", op)}, attrs...)...)
}

func (l *RepoLogger) Failed(ctx context.Context, op string, err error) {
	GlobalLogger.ErrorContext(ctx, "store write failed",
		slog.String("table", l.table),
		slog.String("op", op),
		slog.Any("error", err),
	)
}

// HubLogger logs realtime connection lifecycle for one hub or dispatcher.
type HubLogger struct {
	hub string
}

func NewHubLogger(hub string) *HubLogger {
	return &HubLogger{hub: hub}
}

func (l *HubLogger) Connected(ctx context.Context, userID uint) {
	GlobalLogger.InfoContext(ctx, "socket connected",
		slog.String("hub", l.hub), slog.Uint64("user_id", uint64(userID)))
}

func (l *HubLogger) Disconnected(ctx context.Context, userID uint, reason string) {
	GlobalLogger.InfoContext(ctx, "socket disconnected",
		slog.String("hub", l.hub), slog.Uint64("user_id", uint64(userID)), slog.String("reason", reason))
}

// Failed logs err for the event being handled. userID 0 means no single
// recipient was involved.
func (l *HubLogger) Failed(ctx context.Context, userID uint, event string, err error) {
	attrs := []any{slog.String("hub", l.hub), slog.String("event", event), slog.Any("error", err)}
	if userID != 0 {
		attrs = append(attrs, slog.Uint64("user_id", uint64(userID)))
	}
	GlobalLogger.ErrorContext(ctx, "socket event failed", attrs...)
}

// Background logs the outcome of work detached from a request, such as push
// delivery. A nil err logs at info.
func Background(ctx context.Context, op string, err error, attrs ...any) {
	attrs = append([]any{slog.String("op", op)}, attrs...)
	if err != nil {
		GlobalLogger.ErrorContext(ctx, "background task failed", append(attrs, slog.Any("error", err))...)
		return
	}
	GlobalLogger.InfoContext(ctx, "background task done", attrs...)
}
