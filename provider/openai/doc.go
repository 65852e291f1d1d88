// Package openai adapts the OpenAI chat completions streaming API to the
// engine's provider contract.
//
// The adapter translates each streamed chunk into engine events: content
// deltas become text deltas, tool-call deltas open calls and append to their
// argument buffers keyed by call id, and the trailing usage chunk becomes a
// usage update. Call completions and the turn completion are emitted once
// the underlying stream ends, so a truncated connection never fabricates a
// finished turn.
//
// Configure credentials and endpoints through request options:
//
//	prov := openai.New(option.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//
// Any chat-completions-compatible endpoint works via option.WithBaseURL.
package openai
