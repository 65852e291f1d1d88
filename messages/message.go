package messages

import (
	"time"

	"github.com/aiflow-go/aiflow/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// Role identifies the sender of a transcript message.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
	Tool      Role = "tool"
)

// Message is a single transcript entry. Exactly one of the content shapes is
// populated: Content for text (system, user, assistant, and tool-result
// payloads), or ToolCalls for an assistant tool-call record. Tool-role
// messages additionally carry the CallID they answer.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallData  `json:"tool_calls,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

// IsToolCall reports whether the message is an assistant tool-call record.
func (m Message) IsToolCall() bool {
	return m.Role == Assistant && len(m.ToolCalls) > 0
}

// ToolCallData is one call the model requested: an opaque call id, the tool
// name, and the raw argument buffer. Arguments is not guaranteed to be
// well-formed JSON until the call has been finalized by the decoder.
type ToolCallData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of one tool call. Value holds the structured
// success payload; Err holds a failure description. Failures are
// conversational data fed back to the model, not system errors.
type ToolResult struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Value    json.RawMessage `json:"value,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// Failed reports whether the result describes a failure.
func (r ToolResult) Failed() bool {
	return r.Err != ""
}

// Content renders the result as the JSON document stored in the transcript:
// the success value as-is, or {"error": "..."} for failures.
func (r ToolResult) Content() string {
	if r.Failed() {
		out, err := sjson.Set(`{}`, "error", r.Err)
		if err != nil {
			return `{"error":"unrenderable failure"}`
		}
		return out
	}
	if len(r.Value) == 0 {
		return "null"
	}
	return string(r.Value)
}

// Message converts the result into its tool-role transcript entry.
func (r ToolResult) Message() Message {
	return New().ToolResponse(r.CallID, r.ToolName, r.Content())
}

// Builder stamps new messages with ids and timestamps.
type Builder struct{}

// New returns a message builder.
func New() Builder { return Builder{} }

func (Builder) newMessage(role Role) Message {
	return Message{
		ID:        uuidx.NewString(),
		Role:      role,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

// SystemPrompt builds a system-role message.
func (b Builder) SystemPrompt(content string) Message {
	msg := b.newMessage(System)
	msg.Content = content
	return msg
}

// UserPrompt builds a user-role message.
func (b Builder) UserPrompt(content string) Message {
	msg := b.newMessage(User)
	msg.Content = content
	return msg
}

// AssistantMessage builds an assistant-role text message.
func (b Builder) AssistantMessage(content string) Message {
	msg := b.newMessage(Assistant)
	msg.Content = content
	return msg
}

// ToolCall builds an assistant-role tool-call record.
func (b Builder) ToolCall(calls ...ToolCallData) Message {
	msg := b.newMessage(Assistant)
	msg.ToolCalls = calls
	return msg
}

// ToolResponse builds a tool-role message answering callID with content,
// which is expected to be a JSON document.
func (b Builder) ToolResponse(callID, toolName, content string) Message {
	msg := b.newMessage(Tool)
	msg.CallID = callID
	msg.ToolName = toolName
	msg.Content = content
	return msg
}
