package vm

import "fmt"

// ---------------------------------------------------------------------------
// Error stages
// ---------------------------------------------------------------------------

// ErrorStage records which phase of processing a source program failed.
// A context keeps the stage of its most recent failure until the next
// top-level operation begins.
type ErrorStage uint8

const (
	StageOK ErrorStage = iota
	StageSyntax
	StageSemantic
	StageRuntime
	StageGeneric
)

// String returns a short human-readable stage name.
func (s ErrorStage) String() string {
	switch s {
	case StageOK:
		return "OK"
	case StageSyntax:
		return "syntax error"
	case StageSemantic:
		return "semantic error"
	case StageRuntime:
		return "runtime error"
	default:
		return "generic error"
	}
}

// SyntaxError reports a malformed source program. Line and Col are
// 1-based; Col may be zero when the failure spans the whole line.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("near line %d, char %d: %s", e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("near line %d: %s", e.Line, e.Msg)
}

// SemanticError reports a well-formed program that violates a static
// rule (assignment to a non-lvalue, break outside a loop, redeclared
// variables).
type SemanticError struct {
	Line int
	Msg  string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("near line %d: %s", e.Line, e.Msg)
}

// RuntimeError reports a failure while executing bytecode or a native
// function.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string {
	return e.Msg
}
