package expression

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Reserved names in the evaluation environment.
const (
	DefaultVar = "default"
	ResultVar  = "result"
)

// BuildEnv converts a run context into the variables an expression sees.
//
// "default" is always true and "result" is the textual form of the first
// present result key (empty when none is). Every other key is converted to
// a plain value; entries that cannot be converted are passed as their JSON
// string form.
func BuildEnv(vars map[string]any) map[string]any {
	env := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		if k == DefaultVar || k == ResultVar {
			continue
		}
		env[k] = convertOrString(v)
	}
	env[DefaultVar] = true
	env[ResultVar] = ResultText(vars)
	return env
}

// ResultText returns the first present result key of vars rendered as text.
// Strings are returned as-is, other values as JSON.
func ResultText(vars map[string]any) string {
	for _, key := range api.ResultKeys {
		v, ok := vars[key]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		return stringify(v)
	}
	return ""
}

func convertOrString(v any) any {
	out, err := convertValue(v)
	if err != nil {
		return stringify(v)
	}
	return out
}

func convertValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, int, int64, float64:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case uint:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertOrString(e)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = convertOrString(e)
		}
		return out, nil
	default:
		// Structs, typed slices and maps go through JSON so expressions see
		// the same shape a persisted run would have.
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("convert %T: %w", t, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return nil, fmt.Errorf("convert %T: %w", t, err)
		}
		return convertValue(generic)
	}
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
