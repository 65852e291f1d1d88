// Package events defines the session-update events a stream yields to the
// caller and fans out to observers: assistant text, tool calls (executed or
// pending), tool results, usage updates, and terminal errors. Every event
// carries the run and turn identifiers so out-of-process observers can
// correlate a whole conversation.
package events

import (
	"fmt"

	"github.com/aiflow-go/aiflow/messages"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Event is one tagged session update.
type Event interface {
	event()
}

// Delim brackets a streamed turn, "start" and "end".
type Delim struct {
	RunID  uuid.UUID `json:"run_id"`
	TurnID uuid.UUID `json:"turn_id"`
	Delim  string    `json:"delim"`
}

func (Delim) event() {}

// Text is an increment of assistant text.
type Text struct {
	RunID     uuid.UUID       `json:"run_id"`
	TurnID    uuid.UUID       `json:"turn_id"`
	Text      string          `json:"text"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Text) event() {}

// ToolCall is a completed tool call. Pending marks a client tool the
// application must resolve out of band before the conversation continues.
type ToolCall struct {
	RunID     uuid.UUID             `json:"run_id"`
	TurnID    uuid.UUID             `json:"turn_id"`
	Call      messages.ToolCallData `json:"call"`
	Pending   bool                  `json:"pending,omitempty"`
	Timestamp strfmt.DateTime       `json:"timestamp,omitempty"`
}

func (ToolCall) event() {}

// ToolResult is the outcome of one executed tool call, success or failure.
type ToolResult struct {
	RunID     uuid.UUID           `json:"run_id"`
	TurnID    uuid.UUID           `json:"turn_id"`
	Result    messages.ToolResult `json:"result"`
	Timestamp strfmt.DateTime     `json:"timestamp,omitempty"`
}

func (ToolResult) event() {}

// Usage reports the session's running token totals after a provider usage
// update.
type Usage struct {
	RunID             uuid.UUID       `json:"run_id"`
	TurnID            uuid.UUID       `json:"turn_id"`
	InputTokens       int64           `json:"input_tokens"`
	CachedInputTokens int64           `json:"cached_input_tokens"`
	OutputTokens      int64           `json:"output_tokens"`
	Timestamp         strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Usage) event() {}

// Error is a fatal stream failure.
type Error struct {
	RunID     uuid.UUID       `json:"run_id"`
	TurnID    uuid.UUID       `json:"turn_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) event() {}

func (e Error) Error() string {
	return fmt.Sprintf("run_id: %s, turn_id: %s, error: %v", e.RunID, e.TurnID, e.Err)
}

func (e Error) Unwrap() error { return e.Err }
