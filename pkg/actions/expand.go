package actions

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var varRef = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*\}`)

// Expand replaces ${name} references in s with the values of vars.
// Strings are inserted as-is, other values as JSON. References to
// missing keys are left untouched.
func Expand(s string, vars map[string]any) string {
	if len(vars) == 0 {
		return s
	}
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := varRef.FindStringSubmatch(ref)[1]
		v, ok := vars[name]
		if !ok {
			return ref
		}
		switch v := v.(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		case fmt.Stringer:
			return v.String()
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	})
}
