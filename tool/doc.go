/*
Package tool defines the typed tool registry and the extractor framework
used to bind model-issued tool calls to application functions.

A tool is described by a Definition: a unique name, an optional JSON schema
for its parameters, an optional executor function, and an optional context
value that is handed back to every invocation. Definitions are built once at
setup time and are read-only for the lifetime of a conversation.

# Executors and extractors

An executor is an ordinary Go function. Its parameter list declares, in
order, which pieces of the raw call it wants; the framework resolves each
parameter independently at dispatch time:

  - tool.ID: the opaque call identifier, always available
  - tool.Args[T]: the argument buffer decoded into T
  - tool.Context[T]: the value captured at registration time

An optional leading context.Context receives the dispatch context. The
executor returns (R, error), error, or a bare R; R is marshalled to JSON as
the tool result.

	type addArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}

	def, err := tool.New(func(ctx context.Context, args tool.Args[addArgs]) (int, error) {
		return args.Value.A + args.Value.B, nil
	}, tool.Name("add"))

Declaring a tool.Args[T] parameter also derives the tool's parameter schema
from T. Schema generation is fallible and failures surface as build errors,
before the tool ever reaches a Set.

# Client tools

A client tool has no executor; the application resolves it out of band.
Build one with NewClient and, optionally, a declared parameter schema:

	def, err := tool.NewClient("open_ticket", tool.Parameters[ticketArgs]())

# Registration

Definitions live in a Set keyed by name. Registering a duplicate name fails
with ErrDuplicate and leaves the existing entry untouched.
*/
package tool
