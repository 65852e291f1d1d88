package events

import (
	"context"
	"log/slog"

	"github.com/aiflow-go/aiflow/pkg/slogx"
)

// Hook receives every event a stream yields, in yield order, on the
// stream-producing goroutine. Implementations that do slow work should hand
// events off to their own goroutine.
type Hook interface {
	OnText(ctx context.Context, event Text)
	OnToolCall(ctx context.Context, event ToolCall)
	OnToolResult(ctx context.Context, event ToolResult)
	OnUsage(ctx context.Context, event Usage)
	OnError(ctx context.Context, event Error)
}

// Dispatch routes one event to the matching Hook method. Delim events carry
// no payload and are not routed.
func Dispatch(ctx context.Context, hook Hook, event Event) {
	if hook == nil {
		return
	}
	switch ev := event.(type) {
	case Text:
		hook.OnText(ctx, ev)
	case ToolCall:
		hook.OnToolCall(ctx, ev)
	case ToolResult:
		hook.OnToolResult(ctx, ev)
	case Usage:
		hook.OnUsage(ctx, ev)
	case Error:
		hook.OnError(ctx, ev)
	}
}

// NoopHook ignores every event. Embed it to implement only the methods you
// care about.
type NoopHook struct{}

func (NoopHook) OnText(context.Context, Text)             {}
func (NoopHook) OnToolCall(context.Context, ToolCall)     {}
func (NoopHook) OnToolResult(context.Context, ToolResult) {}
func (NoopHook) OnUsage(context.Context, Usage)           {}
func (NoopHook) OnError(context.Context, Error)           {}

// LoggingHook writes every event to a slog.Logger.
type LoggingHook struct {
	Logger *slog.Logger
}

func (h LoggingHook) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h LoggingHook) OnText(ctx context.Context, event Text) {
	h.logger().DebugContext(ctx, "assistant text",
		slogx.Stringer("run_id", event.RunID), slog.String("text", event.Text))
}

func (h LoggingHook) OnToolCall(ctx context.Context, event ToolCall) {
	h.logger().InfoContext(ctx, "tool call",
		slogx.Stringer("run_id", event.RunID),
		slog.String("tool", event.Call.Name),
		slog.String("call_id", event.Call.ID),
		slog.Bool("pending", event.Pending))
}

func (h LoggingHook) OnToolResult(ctx context.Context, event ToolResult) {
	h.logger().InfoContext(ctx, "tool result",
		slogx.Stringer("run_id", event.RunID),
		slog.String("tool", event.Result.ToolName),
		slog.String("call_id", event.Result.CallID),
		slog.Bool("failed", event.Result.Failed()))
}

func (h LoggingHook) OnUsage(ctx context.Context, event Usage) {
	h.logger().DebugContext(ctx, "usage update",
		slogx.Stringer("run_id", event.RunID),
		slog.Int64("input_tokens", event.InputTokens),
		slog.Int64("cached_input_tokens", event.CachedInputTokens),
		slog.Int64("output_tokens", event.OutputTokens))
}

func (h LoggingHook) OnError(ctx context.Context, event Error) {
	h.logger().ErrorContext(ctx, "stream failed",
		slogx.Stringer("run_id", event.RunID), slogx.Error(event.Err))
}
