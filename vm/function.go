package vm

import "fmt"

// ---------------------------------------------------------------------------
// FunctionObject: callable values, native and bytecode-backed
// ---------------------------------------------------------------------------

// NativeFn is the calling convention for host functions. argv holds the
// arguments as non-owning views; a result is stored through ret, which
// the machine takes ownership of. A zero return means success. A
// negative return signals failure: the implementation must have
// recorded an error through ctx.RuntimeError (or a library helper)
// before returning.
type NativeFn func(ret *Value, argv []Value, ctx *Context) int

// Upvalue is a variable captured by one or more closures. While the
// variable is still live on the machine stack the upvalue is open and
// slot indexes the shared stack location; when the variable's frame
// returns, the machine closes the upvalue by copying the value into it.
// Closed upvalues own a reference to their value. Upvalues are shared
// between closures and carry their own count of owning closures.
type Upvalue struct {
	slot   int
	closed Value
	open   bool
	refs   int
}

func (u *Upvalue) retain() { u.refs++ }

func (u *Upvalue) release() {
	u.refs--
	if u.refs == 0 && !u.open {
		u.closed.Release()
		u.closed = MakeNil()
	}
}

// FunctionObject is a callable value. Exactly one of native and proto
// is set. Bytecode functions that capture variables additionally carry
// the captured upvalues; top-level program functions carry none.
type FunctionObject struct {
	object
	Name     string
	native   NativeFn
	proto    *Proto
	chunk    *Chunk
	upvalues []*Upvalue
	serial   uint64
}

// NewNativeFunction wraps fn as a callable value with a reference count
// of one.
func NewNativeFunction(name string, fn NativeFn) *FunctionObject {
	return &FunctionObject{object: newObject(), Name: name, native: fn, serial: nextSerial()}
}

// newClosure builds a bytecode-backed function over proto. The caller
// fills in the upvalues slice; each upvalue must already be retained
// for this closure.
func newClosure(chunk *Chunk, proto *Proto) *FunctionObject {
	return &FunctionObject{
		object:   newObject(),
		Name:     proto.Name,
		proto:    proto,
		chunk:    chunk,
		upvalues: make([]*Upvalue, 0, len(proto.Captures)),
		serial:   nextSerial(),
	}
}

// IsNative reports whether the function is host-implemented.
func (f *FunctionObject) IsNative() bool { return f.native != nil }

// Arity returns the declared parameter count (0 for natives, which
// accept any argument list).
func (f *FunctionObject) Arity() int {
	if f.proto == nil {
		return 0
	}
	return f.proto.Arity
}

// Tag implements Object.
func (f *FunctionObject) Tag() TypeTag { return TagFunction }

// Equals implements Object: identity only.
func (f *FunctionObject) Equals(other Object) bool {
	o, ok := other.(*FunctionObject)
	return ok && o == f
}

// Hash implements Object.
func (f *FunctionObject) Hash() uint64 {
	return hashUint(f.serial)
}

// Describe implements Object.
func (f *FunctionObject) Describe(debug bool) string {
	name := f.Name
	if name == "" {
		name = "lambda"
	}
	if f.native != nil {
		return fmt.Sprintf("<native function %s>", name)
	}
	return fmt.Sprintf("<function %s>", name)
}

// destroy implements Object: captured upvalues drop this closure's share.
func (f *FunctionObject) destroy() {
	for _, u := range f.upvalues {
		u.release()
	}
	f.upvalues = nil
	f.native = nil
	f.proto = nil
	f.chunk = nil
}
