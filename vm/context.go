package vm

import (
	"errors"
	"fmt"
	"os"
)

// ---------------------------------------------------------------------------
// Context: the embedding API
// ---------------------------------------------------------------------------

// Frontend turns source text into a compiled chunk. Compilation
// failures are reported as *SyntaxError or *SemanticError (possibly
// wrapped); anything else is treated as a generic failure.
type Frontend interface {
	Compile(name, source string) (*Chunk, error)
}

// Context owns a machine and every chunk loaded into it. Chunks stay
// alive until Close, so function values handed out by one program
// remain callable for the context's whole lifetime.
//
// A context remembers its most recent failure as a stage and a message.
// Every top-level operation clears the previous failure on entry, so
// after a successful call the stage is StageOK regardless of history.
type Context struct {
	machine  *Machine
	frontend Frontend
	chunks   []*Chunk

	errStage ErrorStage
	errMsg   string

	userInfo any
}

// NewContext creates a context with no standard library loaded.
// frontend may be nil for contexts that only execute precompiled
// chunks.
func NewContext(frontend Frontend) *Context {
	ctx := &Context{
		machine:  newMachine(DefaultMaxCallDepth),
		frontend: frontend,
	}
	ctx.machine.ctx = ctx
	return ctx
}

// SetMaxCallDepth bounds the machine's call stack. Values below one
// restore the default.
func (c *Context) SetMaxCallDepth(depth int) {
	if depth <= 0 {
		depth = DefaultMaxCallDepth
	}
	c.machine.maxDepth = depth
}

// Close releases every loaded chunk and the machine's state. The
// context must not be used afterwards.
func (c *Context) Close() {
	for _, ch := range c.chunks {
		ch.release()
	}
	c.chunks = nil
	if c.machine != nil {
		c.machine.destroy()
		c.machine = nil
	}
}

// ---------------------------------------------------------------------------
// Error reporting
// ---------------------------------------------------------------------------

// ErrorStage returns the stage of the most recent failure, or StageOK.
func (c *Context) ErrorStage() ErrorStage {
	return c.errStage
}

// ErrorMessage returns the message of the most recent failure, or the
// empty string.
func (c *Context) ErrorMessage() string {
	return c.errMsg
}

// ClearError forgets the most recent failure. Top-level operations do
// this implicitly on entry.
func (c *Context) ClearError() {
	c.errStage = StageOK
	c.errMsg = ""
}

// RuntimeError records a runtime failure. Native functions call this
// before returning a negative status.
func (c *Context) RuntimeError(format string, args ...any) {
	c.machine.RuntimeError(format, args...)
}

func (c *Context) fail(stage ErrorStage, msg string) {
	c.errStage = stage
	c.errMsg = msg
}

// classifyCompileError maps a frontend error onto a stage.
func (c *Context) classifyCompileError(err error) {
	var syn *SyntaxError
	var sem *SemanticError
	switch {
	case errors.As(err, &syn):
		c.fail(StageSyntax, err.Error())
	case errors.As(err, &sem):
		c.fail(StageSemantic, err.Error())
	default:
		c.fail(StageGeneric, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadString compiles src and adds the chunk to the context's arena.
// The chunk stays alive until Close.
func (c *Context) LoadString(src string) (*Chunk, error) {
	c.ClearError()
	return c.loadString("<string>", src)
}

func (c *Context) loadString(name, src string) (*Chunk, error) {
	if c.frontend == nil {
		err := fmt.Errorf("context has no compiler frontend")
		c.fail(StageGeneric, err.Error())
		return nil, err
	}
	chunk, err := c.frontend.Compile(name, src)
	if err != nil {
		c.classifyCompileError(err)
		return nil, err
	}
	c.adopt(chunk)
	return chunk, nil
}

// LoadSrcFile compiles the program in the named file.
func (c *Context) LoadSrcFile(path string) (*Chunk, error) {
	c.ClearError()
	src, err := os.ReadFile(path)
	if err != nil {
		c.fail(StageGeneric, err.Error())
		return nil, err
	}
	return c.loadString(path, string(src))
}

// LoadObjFile loads a precompiled chunk from the named object file.
func (c *Context) LoadObjFile(path string) (*Chunk, error) {
	c.ClearError()
	data, err := os.ReadFile(path)
	if err != nil {
		c.fail(StageGeneric, err.Error())
		return nil, err
	}
	chunk, err := UnmarshalChunk(data)
	if err != nil {
		c.fail(StageGeneric, err.Error())
		return nil, err
	}
	c.adopt(chunk)
	return chunk, nil
}

// adopt adds a chunk to the arena and materializes its constants.
func (c *Context) adopt(chunk *Chunk) {
	chunk.materialize()
	c.chunks = append(c.chunks, chunk)
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// ExecString compiles and runs src. The returned value is the program's
// result; ownership transfers to the caller.
func (c *Context) ExecString(src string) (Value, error) {
	c.ClearError()
	chunk, err := c.loadString("<string>", src)
	if err != nil {
		return MakeNil(), err
	}
	return c.execChunk(chunk)
}

// ExecSrcFile compiles and runs the program in the named file.
func (c *Context) ExecSrcFile(path string) (Value, error) {
	chunk, err := c.LoadSrcFile(path)
	if err != nil {
		return MakeNil(), err
	}
	return c.execChunk(chunk)
}

// ExecObjFile loads and runs a precompiled object file.
func (c *Context) ExecObjFile(path string) (Value, error) {
	chunk, err := c.LoadObjFile(path)
	if err != nil {
		return MakeNil(), err
	}
	return c.execChunk(chunk)
}

// LoadFunction compiles src and wraps its program body as a callable
// value instead of running it. Ownership of the returned function
// transfers to the caller; the backing chunk stays in the arena.
func (c *Context) LoadFunction(src string) (Value, error) {
	c.ClearError()
	chunk, err := c.loadString("<string>", src)
	if err != nil {
		return MakeNil(), err
	}
	return MakeObject(newClosure(chunk, chunk.Main())), nil
}

// ExecChunk runs an already-loaded chunk. Unlike the load operations it
// does not adopt anything: the chunk must belong to this context.
func (c *Context) ExecChunk(chunk *Chunk) (Value, error) {
	c.ClearError()
	return c.execChunk(chunk)
}

func (c *Context) execChunk(chunk *Chunk) (Value, error) {
	v, err := c.machine.Exec(chunk)
	if err != nil {
		c.fail(StageRuntime, err.Error())
		return MakeNil(), err
	}
	return v, nil
}

// CallFunc invokes a function value with the given arguments. Arguments
// are non-owning views; ownership of the result transfers to the
// caller. Reentrant: native functions may call back in.
func (c *Context) CallFunc(fn Value, args []Value) (Value, error) {
	c.ClearError()
	v, err := c.machine.Call(fn, args)
	if err != nil {
		c.fail(StageRuntime, err.Error())
		return MakeNil(), err
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// Globals returns the global table as a non-owning view.
func (c *Context) Globals() *HashMapObject {
	return c.machine.Globals()
}

// GetGlobal returns the global stored under name, nil when absent. The
// returned value is a non-owning view.
func (c *Context) GetGlobal(name string) Value {
	return c.machine.Globals().GetStr(name)
}

// SetGlobal stores v under name in the global table, retaining it.
func (c *Context) SetGlobal(name string, v Value) {
	// string keys are never nil, Set cannot fail
	_ = c.machine.Globals().SetStr(name, v)
}

// RegisterNativeFns installs host functions as globals.
func (c *Context) RegisterNativeFns(fns map[string]NativeFn) {
	for name, fn := range fns {
		f := NewNativeFunction(name, fn)
		v := MakeObject(f)
		c.SetGlobal(name, v)
		v.Release()
	}
}

// RegisterConstants installs values as globals. The map's values are
// non-owning views; the global table retains its own references.
func (c *Context) RegisterConstants(consts map[string]Value) {
	for name, v := range consts {
		c.SetGlobal(name, v)
	}
}

// RegisterMethods installs host functions in a class's method table, so
// values of that class can be invoked with method syntax.
func (c *Context) RegisterMethods(class ClassID, fns map[string]NativeFn) {
	table := c.machine.ClassMethods(class)
	for name, fn := range fns {
		f := NewNativeFunction(name, fn)
		v := MakeObject(f)
		_ = table.SetStr(name, v)
		v.Release()
	}
}

// ClassMethods exposes a class's method table as a non-owning view.
func (c *Context) ClassMethods(class ClassID) *HashMapObject {
	return c.machine.ClassMethods(class)
}

// Backtrace returns the names of the active script functions, innermost
// first.
func (c *Context) Backtrace() []string {
	return c.machine.Backtrace()
}

// UserInfo returns the host payload attached to the context.
func (c *Context) UserInfo() any {
	return c.userInfo
}

// SetUserInfo attaches an arbitrary host payload to the context.
func (c *Context) SetUserInfo(p any) {
	c.userInfo = p
}
