package tool

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/aiflow-go/aiflow/pkg/stdx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// Definition describes one registered tool: its unique name, a human
// readable description, the JSON schema of its parameters (nil for
// schema-less tools), an optional context value handed to every invocation,
// and the executor. A Definition with Client set has no executor; the
// application resolves its calls out of band.
type Definition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Context     any
	Function    any
	Client      bool

	binder *binder
}

// Option configures a Definition during construction.
type Option = opts.Option[Definition]

// Name sets the tool's name. When omitted, the executor's function name is
// used.
var Name = opts.ForName[Definition, string]("Name")

// Description sets the tool's description shown to the model.
var Description = opts.ForName[Definition, string]("Description")

// WithContext captures a context value that is re-handed, unchanged, to
// every invocation through a Context[T] parameter.
func WithContext(v any) Option {
	return opts.Type[Definition](func(d *Definition) error {
		d.Context = v
		return nil
	})
}

// Parameters declares the parameter schema for a tool that has no Args[T]
// parameter to derive it from, typically a client tool. Schema generation
// failures fail the build.
func Parameters[T any]() Option {
	return opts.Type[Definition](func(d *Definition) error {
		var v *T
		schema, err := schemaForType(reflect.TypeOf(v).Elem())
		if err != nil {
			return err
		}
		d.Parameters = schema
		return nil
	})
}

// Must builds a Definition and panics on build errors. Intended for
// setup-time registration where a failure is a programming mistake.
func Must(fn any, options ...Option) Definition {
	return stdx.Must1(New(fn, options...))
}

// New builds a Definition around the executor fn. The executor's parameter
// list is validated and bound here, once: every parameter after an optional
// leading context.Context must be an extractor kind (ID, Args[T], or
// Context[T]), and the return shape must be (R, error), error, or R. An
// Args[T] parameter derives the tool's parameter schema from T.
func New(fn any, options ...Option) (Definition, error) {
	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, &BuildError{Tool: def.Name, Reason: "applying options", Err: err}
	}

	if fn == nil {
		return Definition{}, &BuildError{Tool: def.Name, Reason: "executor is required; use NewClient for client tools"}
	}
	ftype := reflect.TypeOf(fn)
	if ftype.Kind() != reflect.Func {
		return Definition{}, &BuildError{Tool: def.Name, Reason: fmt.Sprintf("executor is %T, not a function", fn)}
	}
	if def.Name == "" {
		def.Name = functionName(fn)
	}
	if def.Name == "" {
		return Definition{}, &BuildError{Reason: "tool name is required"}
	}

	b, argsType, err := bind(def.Name, fn)
	if err != nil {
		return Definition{}, err
	}
	def.Function = fn
	def.binder = b

	if argsType != nil {
		if def.Parameters != nil {
			return Definition{}, &BuildError{Tool: def.Name, Reason: "Parameters option conflicts with an Args parameter; declare one or the other"}
		}
		schema, err := schemaForType(argsType)
		if err != nil {
			return Definition{}, &BuildError{Tool: def.Name, Reason: "generating parameter schema", Err: err}
		}
		def.Parameters = schema
	}

	return def, nil
}

// NewClient builds a client-tool Definition: it has a name and optionally a
// parameter schema, but no executor. Dispatch surfaces its calls to the
// caller instead of executing them.
func NewClient(name string, options ...Option) (Definition, error) {
	def := Definition{Name: name, Client: true}
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, &BuildError{Tool: name, Reason: "applying options", Err: err}
	}
	if def.Name == "" {
		return Definition{}, &BuildError{Reason: "tool name is required"}
	}
	if def.Function != nil {
		return Definition{}, &BuildError{Tool: def.Name, Reason: "client tools cannot have an executor"}
	}
	return def, nil
}

// Execute resolves the executor's parameters from call and runs it. The
// context value captured at registration is made visible to Context[T]
// extractors. Extraction failures short-circuit at the first unresolvable
// parameter and are reported as *ExtractionError.
func (d *Definition) Execute(ctx context.Context, call Call) (json.RawMessage, error) {
	if d.binder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable, d.Name)
	}
	call.Context = d.Context

	in := make([]reflect.Value, 0, len(d.binder.params)+1)
	if d.binder.takesCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, pt := range d.binder.params {
		pv := reflect.New(pt)
		position := i
		if d.binder.takesCtx {
			position++
		}
		if err := pv.Interface().(extractable).extractFrom(&call); err != nil {
			return nil, &ExtractionError{Tool: d.Name, Param: position, Err: err}
		}
		in = append(in, pv.Elem())
	}

	out := d.binder.fn.Call(in)
	var result any
	for _, v := range out {
		if v.Type().Implements(errorType) {
			if !v.IsNil() {
				return nil, v.Interface().(error)
			}
			continue
		}
		result = v.Interface()
	}
	if !d.binder.hasResult {
		return json.RawMessage(`null`), nil
	}

	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshalling result of tool %s: %w", d.Name, err)
	}
	return json.RawMessage(b), nil
}

// binder is the precomputed extraction sequence for one executor: which
// parameters to resolve, in which order, and what the function returns.
type binder struct {
	fn        reflect.Value
	params    []reflect.Type
	takesCtx  bool
	hasResult bool
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()

func bind(name string, fn any) (*binder, reflect.Type, error) {
	ftype := reflect.TypeOf(fn)
	b := &binder{fn: reflect.ValueOf(fn)}

	var argsType reflect.Type
	for i := 0; i < ftype.NumIn(); i++ {
		p := ftype.In(i)
		if i == 0 && p == ctxType {
			b.takesCtx = true
			continue
		}
		if !reflect.PointerTo(p).Implements(extractableType) {
			return nil, nil, &BuildError{
				Tool:   name,
				Reason: fmt.Sprintf("parameter %d has type %s; executor parameters must be ID, Args[T], or Context[T]", i, p),
			}
		}
		if ap, ok := reflect.New(p).Interface().(argsPayload); ok && argsType == nil {
			argsType = ap.payloadType()
		}
		b.params = append(b.params, p)
	}

	switch ftype.NumOut() {
	case 0:
	case 1:
		b.hasResult = !ftype.Out(0).Implements(errorType)
	case 2:
		if !ftype.Out(1).Implements(errorType) {
			return nil, nil, &BuildError{Tool: name, Reason: "second return value must be error"}
		}
		b.hasResult = true
	default:
		return nil, nil, &BuildError{Tool: name, Reason: "executors return (R, error), error, or R"}
	}

	return b, argsType, nil
}

var paramReflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// schemaForType derives the parameter schema for a declared argument type.
// Providers expect function parameters to be JSON objects, so only struct
// types are accepted. The reflector panics on types it cannot describe;
// that is converted into a build failure.
func schemaForType(t reflect.Type) (schema *jsonschema.Schema, err error) {
	defer func() {
		if r := recover(); r != nil {
			schema = nil
			err = fmt.Errorf("schema generation failed for %s: %v", t, r)
		}
	}()

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("parameter type %s is not a struct", t)
	}

	schema = paramReflector.ReflectFromType(t)
	schema.Version = ""
	schema.Title = ""
	return schema, nil
}

func functionName(fn any) string {
	val := reflect.ValueOf(fn)
	rf := runtime.FuncForPC(val.Pointer())
	if rf == nil {
		return ""
	}
	name := rf.Name()
	if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
		name = strings.TrimSuffix(name[lastDot+1:], "-fm")
	}
	// Anonymous functions come out as funcN; they need an explicit Name.
	if strings.HasPrefix(name, "func") {
		return ""
	}
	return name
}
