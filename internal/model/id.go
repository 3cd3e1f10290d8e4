package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a backend identifier. The LMS backend mixes numeric and string ids,
// so ID accepts both and marshals integers back as bare JSON numbers.
type ID string

// UnmarshalJSON accepts `42` and `"42"` alike.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits integers as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return id == ""
}
