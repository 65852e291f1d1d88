package provider

import (
	"context"
	"fmt"

	"github.com/aiflow-go/aiflow/messages"
	"github.com/aiflow-go/aiflow/tool"
)

// Request describes one streamed model turn: the model to use, the
// conversation so far, the tools the model may call, and the cursor of the
// previous turn when the transport supports response threading.
type Request struct {
	Model              string
	Thread             []messages.Message
	Tools              []*tool.Definition
	ToolChoice         string
	PreviousResponseID string

	_ struct{} // require field names
}

// Provider streams one model turn. The returned channel is closed when the
// turn ends, after a TurnCompleted or Error event. Implementations stop
// producing when ctx is canceled.
type Provider interface {
	Responses(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// StreamEvent is one tagged variant of a streamed turn.
type StreamEvent interface {
	streamEvent()
}

// TextDelta carries an increment of assistant text.
type TextDelta struct {
	Text string
}

func (TextDelta) streamEvent() {}

// ToolCallStarted opens a tool call. CallID keys every later delta for this
// call; it is unique within the turn.
type ToolCallStarted struct {
	CallID string
	Name   string
}

func (ToolCallStarted) streamEvent() {}

// ToolCallArgumentsDelta carries an increment of a call's raw argument
// buffer. The buffer is not guaranteed to be well-formed JSON until the call
// completes.
type ToolCallArgumentsDelta struct {
	CallID string
	Delta  string
}

func (ToolCallArgumentsDelta) streamEvent() {}

// ToolCallCompleted marks a call's argument buffer as final.
type ToolCallCompleted struct {
	CallID string
}

func (ToolCallCompleted) streamEvent() {}

// UsageUpdate reports token counts observed so far. Counts are merged
// additively into the session's running totals.
type UsageUpdate struct {
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
}

func (UsageUpdate) streamEvent() {}

// TurnCompleted ends the turn. ResponseID, when present, becomes the
// session cursor for the next request.
type TurnCompleted struct {
	ResponseID string
}

func (TurnCompleted) streamEvent() {}

// Error is a fatal transport or protocol failure. It ends the stream; the
// session is left in its last consistent state.
type Error struct {
	Err error
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e Error) Unwrap() error { return e.Err }
