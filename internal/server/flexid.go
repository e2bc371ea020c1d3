package server

import (
	"bytes"
	"encoding/json"
)

// flexibleID accepts a conversation id supplied as either a JSON
// number or a string, since spec's request grammar types it as an
// int (matching the original numeric ids) while this gateway's
// conversation store keys conversations by UUID string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	*f = flexibleID(data)
	return nil
}
