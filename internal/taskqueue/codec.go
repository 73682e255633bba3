package taskqueue

import (
	"bytes"
	"encoding/json"
)

// EncodeTask JSON-encodes a Task.
func EncodeTask(t Task) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask decodes a Task produced by EncodeTask. Numbers in Vars are
// kept as json.Number.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
