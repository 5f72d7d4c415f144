// Package stdlib provides the standard library of the scripting
// runtime: I/O, string, array, hashmap, math, system and database
// functions, installed as globals and as per-type methods.
package stdlib

import (
	"github.com/carriercomm/Sparkling/compiler"
	"github.com/carriercomm/Sparkling/vm"
)

// NewContext builds a context wired to the compiler frontend with the
// whole standard library loaded.
func NewContext() *vm.Context {
	ctx := vm.NewContext(compiler.New())
	Load(ctx)
	return ctx
}

// Load installs the standard library into an existing context.
func Load(ctx *vm.Context) {
	loadIO(ctx)
	loadString(ctx)
	loadArray(ctx)
	loadHashMap(ctx)
	loadMath(ctx)
	loadSys(ctx)
	loadDB(ctx)
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// fail records a runtime error on behalf of a native function and
// returns its failure status, so natives can `return fail(ctx, ...)`.
func fail(ctx *vm.Context, format string, args ...any) int {
	ctx.RuntimeError(format, args...)
	return -1
}

func wantArgc(ctx *vm.Context, fn string, argv []vm.Value, n int) bool {
	if len(argv) != n {
		ctx.RuntimeError("%s: expecting %d arguments, got %d", fn, n, len(argv))
		return false
	}
	return true
}

func wantArgcRange(ctx *vm.Context, fn string, argv []vm.Value, lo, hi int) bool {
	if len(argv) < lo || len(argv) > hi {
		ctx.RuntimeError("%s: expecting %d to %d arguments, got %d", fn, lo, hi, len(argv))
		return false
	}
	return true
}

func wantString(ctx *vm.Context, fn string, argv []vm.Value, i int) (*vm.StringObject, bool) {
	if i >= len(argv) || !argv[i].IsString() {
		ctx.RuntimeError("%s: argument %d must be a string", fn, i+1)
		return nil, false
	}
	return argv[i].String(), true
}

func wantInt(ctx *vm.Context, fn string, argv []vm.Value, i int) (int64, bool) {
	if i >= len(argv) || !argv[i].IsInt() {
		ctx.RuntimeError("%s: argument %d must be an integer", fn, i+1)
		return 0, false
	}
	return argv[i].Int(), true
}

func wantNumber(ctx *vm.Context, fn string, argv []vm.Value, i int) (float64, bool) {
	if i >= len(argv) || !argv[i].IsNumber() {
		ctx.RuntimeError("%s: argument %d must be a number", fn, i+1)
		return 0, false
	}
	return argv[i].Number(), true
}

func wantArray(ctx *vm.Context, fn string, argv []vm.Value, i int) (*vm.ArrayObject, bool) {
	if i >= len(argv) || !argv[i].IsArray() {
		ctx.RuntimeError("%s: argument %d must be an array", fn, i+1)
		return nil, false
	}
	return argv[i].Array(), true
}

func wantHashMap(ctx *vm.Context, fn string, argv []vm.Value, i int) (*vm.HashMapObject, bool) {
	if i >= len(argv) || !argv[i].IsHashMap() {
		ctx.RuntimeError("%s: argument %d must be a hashmap", fn, i+1)
		return nil, false
	}
	return argv[i].HashMap(), true
}

func wantFunction(ctx *vm.Context, fn string, argv []vm.Value, i int) (vm.Value, bool) {
	if i >= len(argv) || !argv[i].IsFunction() {
		ctx.RuntimeError("%s: argument %d must be a function", fn, i+1)
		return vm.MakeNil(), false
	}
	return argv[i], true
}
