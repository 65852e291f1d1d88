// Package decoder reassembles a provider's streamed events into assistant
// text and complete tool calls. One Decoder handles exactly one turn; it is
// a state machine that tolerates interleaved argument deltas across
// concurrently open calls, keyed by call identifier.
package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aiflow-go/aiflow/pkg/jsonx"
	"github.com/aiflow-go/aiflow/provider"
	json "github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrProtocol marks provider input that violates the streaming contract:
// duplicate call ids, deltas for unknown or finalized calls, events after
// the turn completed. Protocol errors are fatal to the stream.
var ErrProtocol = errors.New("protocol violation")

// State is the decoder's position in the turn lifecycle.
type State int

const (
	Idle State = iota
	Streaming
	Finalizing
	Done
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RepairFunc turns a possibly malformed argument buffer into well-formed
// JSON. It runs exactly once per completed call, at finalization, never per
// delta.
type RepairFunc func(input []byte) (json.RawMessage, error)

// CompletedCall is a finalized tool call. Err is set when the argument
// buffer could not be repaired into valid JSON; such calls still dispatch,
// as failure results, so the model hears about them.
type CompletedCall struct {
	ID   string
	Name string
	Args json.RawMessage
	Err  error
}

// Frame is the decoder's output for one fed event. A nil Frame means the
// event only advanced internal state.
type Frame interface {
	frame()
}

// TextFrame carries an assistant text increment.
type TextFrame struct {
	Delta string
}

func (TextFrame) frame() {}

// CallFrame carries a call the provider just finalized. Calls surface in
// completion order.
type CallFrame struct {
	Call CompletedCall
}

func (CallFrame) frame() {}

// UsageFrame carries a token-count update to merge into the session.
type UsageFrame struct {
	Usage provider.UsageUpdate
}

func (UsageFrame) frame() {}

// TurnFrame ends the turn: the full assistant text, every completed call in
// completion order, and the provider's response cursor.
type TurnFrame struct {
	Text       string
	Calls      []CompletedCall
	ResponseID string
}

func (TurnFrame) frame() {}

type callBuffer struct {
	name string
	buf  strings.Builder
	done bool
}

// Decoder reassembles one turn. Not safe for concurrent use; the
// orchestrator feeds it from the single stream-consuming goroutine.
type Decoder struct {
	state     State
	repair    RepairFunc
	text      strings.Builder
	calls     *orderedmap.OrderedMap[string, *callBuffer]
	completed []CompletedCall
}

// New returns a Decoder for one turn. A nil repair falls back to
// jsonx.ParseIncomplete.
func New(repair RepairFunc) *Decoder {
	if repair == nil {
		repair = jsonx.ParseIncomplete
	}
	return &Decoder{
		state:  Idle,
		repair: repair,
		calls:  orderedmap.New[string, *callBuffer](),
	}
}

func (d *Decoder) State() State { return d.state }

// Feed advances the state machine with one provider event. A returned error
// is a protocol violation (or the provider's own fatal error); the decoder
// is terminal afterwards and committed output remains valid.
func (d *Decoder) Feed(event provider.StreamEvent) (Frame, error) {
	switch d.state {
	case Done:
		return nil, d.fail(fmt.Errorf("%w: event %T after turn completed", ErrProtocol, event))
	case Errored:
		return nil, d.fail(fmt.Errorf("%w: event %T on errored decoder", ErrProtocol, event))
	}

	switch ev := event.(type) {
	case provider.TextDelta:
		d.state = Streaming
		d.text.WriteString(ev.Text)
		return TextFrame{Delta: ev.Text}, nil

	case provider.ToolCallStarted:
		d.state = Streaming
		if _, exists := d.calls.Get(ev.CallID); exists {
			return nil, d.fail(fmt.Errorf("%w: duplicate tool call id %q", ErrProtocol, ev.CallID))
		}
		d.calls.Set(ev.CallID, &callBuffer{name: ev.Name})
		return nil, nil

	case provider.ToolCallArgumentsDelta:
		call, exists := d.calls.Get(ev.CallID)
		if !exists {
			return nil, d.fail(fmt.Errorf("%w: arguments delta for unknown call %q", ErrProtocol, ev.CallID))
		}
		if call.done {
			return nil, d.fail(fmt.Errorf("%w: arguments delta for finalized call %q", ErrProtocol, ev.CallID))
		}
		call.buf.WriteString(ev.Delta)
		return nil, nil

	case provider.ToolCallCompleted:
		call, exists := d.calls.Get(ev.CallID)
		if !exists {
			return nil, d.fail(fmt.Errorf("%w: completion for unknown call %q", ErrProtocol, ev.CallID))
		}
		if call.done {
			return nil, d.fail(fmt.Errorf("%w: completion for finalized call %q", ErrProtocol, ev.CallID))
		}
		call.done = true
		completed := d.finalize(ev.CallID, call)
		d.completed = append(d.completed, completed)
		return CallFrame{Call: completed}, nil

	case provider.UsageUpdate:
		return UsageFrame{Usage: ev}, nil

	case provider.TurnCompleted:
		d.state = Finalizing
		for pair := d.calls.Oldest(); pair != nil; pair = pair.Next() {
			if !pair.Value.done {
				return nil, d.fail(fmt.Errorf("%w: turn completed with unfinalized call %q", ErrProtocol, pair.Key))
			}
		}
		d.state = Done
		return TurnFrame{
			Text:       d.text.String(),
			Calls:      d.completed,
			ResponseID: ev.ResponseID,
		}, nil

	case provider.Error:
		return nil, d.fail(ev)

	default:
		return nil, d.fail(fmt.Errorf("%w: unexpected event %T", ErrProtocol, event))
	}
}

// finalize freezes a call's buffer and repairs it. Repair failures become
// part of the call record rather than failing the stream.
func (d *Decoder) finalize(id string, call *callBuffer) CompletedCall {
	out := CompletedCall{ID: id, Name: call.name}
	raw := call.buf.String()
	if raw == "" {
		raw = "{}"
	}
	args, err := d.repair([]byte(raw))
	if err != nil {
		out.Err = fmt.Errorf("decoding arguments of call %s: %w", id, err)
		return out
	}
	out.Args = args
	return out
}

func (d *Decoder) fail(err error) error {
	d.state = Errored
	return err
}
