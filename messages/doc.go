// Package messages defines the conversation data model: transcript messages,
// tool-call records, and tool results.
//
// Messages are immutable once appended to a session; their order is the
// causal order of the conversation. Four roles exist:
//
//   - system: instructions set by the application
//   - user: prompts supplied by the application
//   - assistant: model output, either free text or a tool-call record
//   - tool: the result of exactly one tool call, matched by call id
//
// Use New to obtain a builder that stamps every message with a v7 UUID and
// a timestamp:
//
//	msg := messages.New().UserPrompt("What's the weather in NYC?")
package messages
