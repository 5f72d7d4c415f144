// Package compiler turns source text into bytecode chunks for the
// virtual machine. It exposes a single Frontend type; lexing, parsing
// and code generation are internal.
package compiler

import "github.com/carriercomm/Sparkling/vm"

// Frontend compiles source programs. It is stateless and safe to share
// between contexts.
type Frontend struct{}

// New returns a compiler frontend.
func New() *Frontend {
	return &Frontend{}
}

// Compile parses and generates code for source. Failures are
// *vm.SyntaxError for malformed input and *vm.SemanticError for
// well-formed programs that break a static rule.
func (f *Frontend) Compile(name, source string) (*vm.Chunk, error) {
	prog, err := parse(source)
	if err != nil {
		return nil, err
	}
	return generate(name, prog)
}

var _ vm.Frontend = (*Frontend)(nil)
