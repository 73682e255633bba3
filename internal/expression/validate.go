package expression

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

const (
	// MaxLength is the longest expression accepted, in characters.
	MaxLength = 500

	// MaxNestingDepth bounds how deeply brackets may nest.
	MaxNestingDepth = 10
)

// blocked lists substrings that are rejected anywhere in an expression,
// case-insensitively.
var blocked = []string{
	"import",
	"exec",
	"system",
	"file",
	"read",
	"write",
	"delete",
	"remove",
	"spawn",
	"kill",
	"eval",
	"process",
	"shell",
	"socket",
	"network",
	"__",
}

var tripleQuotes = []string{`"""`, `'''`}

// Validate rejects expressions that are too long, mention a blocked
// operation, contain triple-quoted strings, or nest brackets too deeply.
// It never compiles the expression.
func Validate(expression string) error {
	if n := utf8.RuneCountInString(expression); n > MaxLength {
		return invalid(expression, fmt.Sprintf("expression too long: %d > %d characters", n, MaxLength))
	}

	lower := strings.ToLower(expression)
	for _, word := range blocked {
		if strings.Contains(lower, word) {
			return invalid(expression, fmt.Sprintf("expression contains forbidden pattern %q", word))
		}
	}

	for _, q := range tripleQuotes {
		if strings.Contains(expression, q) {
			return invalid(expression, "expression contains triple-quoted string")
		}
	}

	if depth := nestingDepth(expression); depth > MaxNestingDepth {
		return invalid(expression, fmt.Sprintf("expression nesting too deep: %d > %d", depth, MaxNestingDepth))
	}
	return nil
}

// nestingDepth returns the deepest bracket nesting seen while scanning.
// Unbalanced closing brackets never drive the depth below zero.
func nestingDepth(s string) int {
	depth, maxDepth := 0, 0
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth
}

func invalid(expression, reason string) error {
	return &api.ExpressionError{Expression: expression, Reason: reason}
}
