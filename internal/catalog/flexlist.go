package catalog

import (
	"bytes"
	"encoding/json"
)

// FlexList normalizes a catalog field that arrives either as a single JSON
// object or as a list of objects. Both shapes decode into the same slice,
// so downstream code never branches on the wire shape.
type FlexList[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexList[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = nil
		return nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}

		*f = items

		return nil
	}

	var single T
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}

	*f = FlexList[T]{single}

	return nil
}
