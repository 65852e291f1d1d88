package events

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	delimJSON      = []byte(`{"type":"delim"}`)
	textJSON       = []byte(`{"type":"text"}`)
	toolCallJSON   = []byte(`{"type":"tool_call"}`)
	toolResultJSON = []byte(`{"type":"tool_result"}`)
	usageJSON      = []byte(`{"type":"usage"}`)
	errorJSON      = []byte(`{"type":"error"}`)
)

// ToJSON renders an event with its type discriminator, for wire transports.
func ToJSON(event Event) ([]byte, error) {
	switch ev := event.(type) {
	case Delim:
		return ev.MarshalJSON()
	case Text:
		return ev.MarshalJSON()
	case ToolCall:
		return ev.MarshalJSON()
	case ToolResult:
		return ev.MarshalJSON()
	case Usage:
		return ev.MarshalJSON()
	case Error:
		return ev.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown event type %T", event)
	}
}

// FromJSON decodes an event by its type discriminator.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	switch kind := gjson.GetBytes(data, "type").String(); kind {
	case "delim":
		var ev Delim
		return ev, ev.UnmarshalJSON(data)
	case "text":
		var ev Text
		return ev, ev.UnmarshalJSON(data)
	case "tool_call":
		var ev ToolCall
		return ev, ev.UnmarshalJSON(data)
	case "tool_result":
		var ev ToolResult
		return ev, ev.UnmarshalJSON(data)
	case "usage":
		var ev Usage
		return ev, ev.UnmarshalJSON(data)
	case "error":
		var ev Error
		return ev, ev.UnmarshalJSON(data)
	default:
		return nil, fmt.Errorf("missing or unknown event type %q", kind)
	}
}

func setIdentity(result []byte, runID, turnID fmt.Stringer) ([]byte, error) {
	result, err := sjson.SetBytes(result, "run_id", runID.String())
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "turn_id", turnID.String())
}

func getIdentity(data []byte, runID, turnID interface{ UnmarshalText([]byte) error }) error {
	run := gjson.GetBytes(data, "run_id")
	if !run.Exists() {
		return errors.New("missing required field 'run_id'")
	}
	if err := runID.UnmarshalText([]byte(run.String())); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}

	turn := gjson.GetBytes(data, "turn_id")
	if !turn.Exists() {
		return errors.New("missing required field 'turn_id'")
	}
	if err := turnID.UnmarshalText([]byte(turn.String())); err != nil {
		return fmt.Errorf("invalid turn_id: %w", err)
	}
	return nil
}

func checkType(data []byte, want string) error {
	kind := gjson.GetBytes(data, "type")
	if !kind.Exists() || kind.String() != want {
		return fmt.Errorf("missing or invalid type, expected %q", want)
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for Delim
func (d Delim) MarshalJSON() ([]byte, error) {
	result, err := setIdentity(delimJSON, d.RunID, d.TurnID)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "delim", d.Delim)
}

// UnmarshalJSON implements custom JSON unmarshaling for Delim
func (d *Delim) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "delim"); err != nil {
		return err
	}
	if err := getIdentity(data, &d.RunID, &d.TurnID); err != nil {
		return err
	}
	delim := gjson.GetBytes(data, "delim")
	if !delim.Exists() {
		return errors.New("missing required field 'delim'")
	}
	d.Delim = delim.String()
	return nil
}

// MarshalJSON implements custom JSON marshaling for Text
func (t Text) MarshalJSON() ([]byte, error) {
	result, err := setIdentity(textJSON, t.RunID, t.TurnID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "text", t.Text)
	if err != nil {
		return nil, err
	}
	if !t.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", t.Timestamp.String())
	}
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for Text
func (t *Text) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "text"); err != nil {
		return err
	}
	if err := getIdentity(data, &t.RunID, &t.TurnID); err != nil {
		return err
	}
	text := gjson.GetBytes(data, "text")
	if !text.Exists() {
		return errors.New("missing required field 'text'")
	}
	t.Text = text.String()
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := t.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for ToolCall
func (c ToolCall) MarshalJSON() ([]byte, error) {
	result, err := setIdentity(toolCallJSON, c.RunID, c.TurnID)
	if err != nil {
		return nil, err
	}

	callBytes, err := json.Marshal(c.Call)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "call", callBytes)
	if err != nil {
		return nil, err
	}

	if c.Pending {
		result, err = sjson.SetBytes(result, "pending", true)
		if err != nil {
			return nil, err
		}
	}
	if !c.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", c.Timestamp.String())
	}
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolCall
func (c *ToolCall) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "tool_call"); err != nil {
		return err
	}
	if err := getIdentity(data, &c.RunID, &c.TurnID); err != nil {
		return err
	}
	call := gjson.GetBytes(data, "call")
	if !call.Exists() {
		return errors.New("missing required field 'call'")
	}
	if err := json.Unmarshal([]byte(call.Raw), &c.Call); err != nil {
		return fmt.Errorf("invalid call: %w", err)
	}
	c.Pending = gjson.GetBytes(data, "pending").Bool()
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := c.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for ToolResult
func (r ToolResult) MarshalJSON() ([]byte, error) {
	result, err := setIdentity(toolResultJSON, r.RunID, r.TurnID)
	if err != nil {
		return nil, err
	}

	resBytes, err := json.Marshal(r.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "result", resBytes)
	if err != nil {
		return nil, err
	}

	if !r.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", r.Timestamp.String())
	}
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolResult
func (r *ToolResult) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "tool_result"); err != nil {
		return err
	}
	if err := getIdentity(data, &r.RunID, &r.TurnID); err != nil {
		return err
	}
	res := gjson.GetBytes(data, "result")
	if !res.Exists() {
		return errors.New("missing required field 'result'")
	}
	if err := json.Unmarshal([]byte(res.Raw), &r.Result); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := r.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for Usage
func (u Usage) MarshalJSON() ([]byte, error) {
	result, err := setIdentity(usageJSON, u.RunID, u.TurnID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "input_tokens", u.InputTokens)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "cached_input_tokens", u.CachedInputTokens)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "output_tokens", u.OutputTokens)
	if err != nil {
		return nil, err
	}
	if !u.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", u.Timestamp.String())
	}
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for Usage
func (u *Usage) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "usage"); err != nil {
		return err
	}
	if err := getIdentity(data, &u.RunID, &u.TurnID); err != nil {
		return err
	}
	u.InputTokens = gjson.GetBytes(data, "input_tokens").Int()
	u.CachedInputTokens = gjson.GetBytes(data, "cached_input_tokens").Int()
	u.OutputTokens = gjson.GetBytes(data, "output_tokens").Int()
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := u.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	result, err := setIdentity(errorJSON, e.RunID, e.TurnID)
	if err != nil {
		return nil, err
	}
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	result, err = sjson.SetBytes(result, "error", msg)
	if err != nil {
		return nil, err
	}
	if !e.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
	}
	return result, err
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "error"); err != nil {
		return err
	}
	if err := getIdentity(data, &e.RunID, &e.TurnID); err != nil {
		return err
	}
	errField := gjson.GetBytes(data, "error")
	if !errField.Exists() {
		return errors.New("missing required field 'error'")
	}
	e.Err = errors.New(errField.String())
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := e.Timestamp.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}
