package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned by Set.Add when the name is already taken.
	ErrDuplicate = errors.New("tool already registered")
	// ErrUnknownTool is returned by Set lookups for unregistered names.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNotExecutable is returned when Execute is called on a client tool.
	ErrNotExecutable = errors.New("tool has no executor")
)

// BuildError reports a tool definition that failed validation before
// reaching a registry: a non-function executor, an unsupported parameter
// signature, or a schema generation failure.
type BuildError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	name := e.Tool
	if name == "" {
		name = "<unnamed>"
	}
	if e.Err != nil {
		return fmt.Sprintf("building tool %s: %s: %v", name, e.Reason, e.Err)
	}
	return fmt.Sprintf("building tool %s: %s", name, e.Reason)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ExtractionError reports that one executor parameter could not be resolved
// from the raw call. Param is the zero-based position in the executor's
// signature, counting the optional leading context.Context.
type ExtractionError struct {
	Tool  string
	Param int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting parameter %d of tool %s: %v", e.Param, e.Tool, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
