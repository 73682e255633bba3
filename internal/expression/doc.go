// Package expression evaluates the guard expressions attached to Custom
// transitions.
//
// Expressions are checked by Validate before they are compiled with
// expr-lang/expr. Compiled programs are kept in a bounded LRU cache keyed by
// the expression text. Run-context values are converted by BuildEnv, and
// results are coerced to a boolean by Truthy.
package expression
