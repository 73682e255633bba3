package persistence

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// EncodeValue serializes v as JSON.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeValue decodes JSON produced by EncodeValue into a T. Numbers inside
// untyped values (such as a run context) are kept as json.Number so that
// integers survive the round trip without turning into float64.
func DecodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := dec.Decode(&v)
	return v, err
}

func encodeRun(run *api.WorkflowRun) ([]byte, error) {
	return EncodeValue(run)
}

func decodeRun(data []byte) (*api.WorkflowRun, error) {
	if len(data) == 0 {
		return nil, ErrRunNotFound
	}
	run, err := DecodeValue[*api.WorkflowRun](data)
	if err != nil {
		return nil, err
	}
	if run.Context == nil {
		run.Context = make(map[string]any)
	}
	return run, nil
}

// sortRuns orders runs by start time, then ID.
func sortRuns(runs []*api.WorkflowRun) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
