package expression

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/parser/lexer"
)

// compileOptions disables every builtin function that expression only
// uses as a plain name, so a context key such as "count" or "len" resolves
// to the variable instead of the function. A builtin that is also called
// anywhere in the expression stays enabled.
func compileOptions(expression string) []expr.Option {
	tokens, err := lexer.Lex(file.NewSource(expression))
	if err != nil {
		// Let Compile report the syntax error.
		return nil
	}

	bare := make(map[string]bool)
	called := make(map[string]bool)
	for i, tok := range tokens {
		if tok.Kind != lexer.Identifier {
			continue
		}
		if _, ok := builtin.Index[tok.Value]; !ok {
			continue
		}
		if i > 0 && tokens[i-1].Is(lexer.Operator, ".", "?.") {
			continue
		}
		if i+1 < len(tokens) && tokens[i+1].Is(lexer.Bracket, "(") {
			called[tok.Value] = true
			continue
		}
		bare[tok.Value] = true
	}

	var opts []expr.Option
	for name := range bare {
		if !called[name] {
			opts = append(opts, expr.DisableBuiltin(name))
		}
	}
	return opts
}
