package jsonx

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/kaptinlin/jsonrepair"
)

// ParseIncomplete turns a possibly truncated or malformed JSON buffer into a
// well-formed document. Streaming providers deliver tool-call arguments as
// raw fragments, so the accumulated buffer is frequently cut off mid-object
// when a call finalizes.
//
// The repaired document is validated by unmarshalling before it is returned.
// An error means the buffer could not be repaired into valid JSON.
func ParseIncomplete(input []byte) (json.RawMessage, error) {
	repaired, err := jsonrepair.JSONRepair(string(input))
	if err != nil {
		return nil, fmt.Errorf("unrepairable json: %w", err)
	}

	var probe any
	if err := json.Unmarshal([]byte(repaired), &probe); err != nil {
		return nil, fmt.Errorf("repaired document is not valid json: %w", err)
	}
	return json.RawMessage(repaired), nil
}
