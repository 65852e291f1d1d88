// Package provider defines the contract between the orchestration engine and
// a model transport. A Provider turns a Request into a channel of
// StreamEvents, the tagged variants a streaming completion decomposes into:
// text deltas, tool-call lifecycle events, usage updates, and turn
// completion. Events arrive in provider order over a single logical
// connection; reconnection and retry are the transport's concern, the engine
// only reacts to the terminal event the transport surfaces.
package provider
