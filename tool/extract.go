package tool

import (
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
)

// Call is the raw record a completed tool call is dispatched with: the call
// identifier, the tool name, the finalized (repaired) argument document, and
// the context value captured at registration time.
type Call struct {
	ID      string
	Name    string
	Args    json.RawMessage
	Context any
}

// extractable is implemented by the pointer form of every extractor kind.
// Executor parameters must be one of these kinds; resolution happens in
// declaration order and short-circuits on the first failure.
type extractable interface {
	extractFrom(call *Call) error
}

// ID extracts the call identifier. It never fails.
type ID string

func (i *ID) extractFrom(call *Call) error {
	*i = ID(call.ID)
	return nil
}

// Args extracts the argument document decoded into T. Extraction fails when
// the document does not conform to T's shape. An empty buffer decodes as an
// empty object so argument-less invocations still bind.
type Args[T any] struct {
	Value T
}

func (a *Args[T]) extractFrom(call *Call) error {
	buf := call.Args
	if len(buf) == 0 {
		buf = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(buf, &a.Value); err != nil {
		return fmt.Errorf("arguments do not match %T: %w", a.Value, err)
	}
	return nil
}

// payloadType exposes T so the builder can derive the parameter schema.
func (*Args[T]) payloadType() reflect.Type {
	var v *T
	return reflect.TypeOf(v).Elem()
}

// Context extracts the registration-time context value as T. Extraction
// fails when the tool was registered without a context of that type.
type Context[T any] struct {
	Value T
}

func (c *Context[T]) extractFrom(call *Call) error {
	if call.Context == nil {
		return fmt.Errorf("tool registered without a context value")
	}
	v, ok := call.Context.(T)
	if !ok {
		return fmt.Errorf("context value is %T, requested %s", call.Context, reflect.TypeOf(&c.Value).Elem())
	}
	c.Value = v
	return nil
}

var (
	extractableType = reflect.TypeOf((*extractable)(nil)).Elem()
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
)

// argsPayload is satisfied only by *Args[T]; it doubles as the marker the
// builder uses to locate the schema source among the parameters.
type argsPayload interface {
	payloadType() reflect.Type
}
