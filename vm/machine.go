package vm

import "fmt"

// ---------------------------------------------------------------------------
// Machine: the bytecode interpreter
// ---------------------------------------------------------------------------

// DefaultMaxCallDepth bounds recursion when no limit is configured.
const DefaultMaxCallDepth = 1000

type frame struct {
	fn   *FunctionObject
	ip   int
	base int // stack index of local slot 0
}

// Machine executes bytecode chunks. Stack slots own a reference to the
// value they hold: pushing retains (or transfers ownership, for the
// pushOwned path) and popping transfers ownership to the caller. A
// machine is single-goroutine; reentrant calls from native functions
// back into the machine are supported.
type Machine struct {
	ctx      *Context
	stack    []Value
	frames   []frame
	globals  *HashMapObject
	classes  classRegistry
	maxDepth int

	openUpvalues []*Upvalue

	result Value // last top-level expression statement value

	errMsg string
	failed bool
}

func newMachine(maxDepth int) *Machine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &Machine{
		globals:  NewHashMap(),
		maxDepth: maxDepth,
		result:   MakeNil(),
	}
}

func (m *Machine) destroy() {
	for i := range m.stack {
		m.stack[i].Release()
	}
	m.stack = nil
	m.frames = nil
	m.result.Release()
	m.result = MakeNil()
	ReleaseObject(m.globals)
	m.globals = nil
	m.classes.destroy()
}

// Globals returns the machine's global table as a non-owning view.
func (m *Machine) Globals() *HashMapObject {
	return m.globals
}

// ClassMethods returns the method table for class, creating it on
// demand, as a non-owning view.
func (m *Machine) ClassMethods(class ClassID) *HashMapObject {
	return m.classes.methods(class)
}

// Backtrace returns the names of the active script functions, innermost
// first. Useful from native functions for diagnostics.
func (m *Machine) Backtrace() []string {
	out := make([]string, 0, len(m.frames))
	for i := len(m.frames) - 1; i >= 0; i-- {
		name := m.frames[i].fn.Name
		if name == "" {
			name = "<lambda>"
		}
		out = append(out, name)
	}
	return out
}

// RuntimeError records a runtime failure. Native functions call this
// (usually through Context) before returning a negative status.
func (m *Machine) RuntimeError(format string, args ...any) {
	m.errMsg = fmt.Sprintf(format, args...)
	m.failed = true
}

// ---------------------------------------------------------------------------
// Stack primitives
// ---------------------------------------------------------------------------

func (m *Machine) push(v Value) {
	v.Retain()
	m.stack = append(m.stack, v)
}

// pushOwned pushes without retaining: ownership transfers to the slot.
func (m *Machine) pushOwned(v Value) {
	m.stack = append(m.stack, v)
}

// pop transfers ownership of the top value to the caller.
func (m *Machine) pop() Value {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack[n] = MakeNil()
	m.stack = m.stack[:n]
	return v
}

// popRelease pops and releases the top value.
func (m *Machine) popRelease() {
	m.pop().Release()
}

func (m *Machine) peek(depth int) Value {
	return m.stack[len(m.stack)-1-depth]
}

// truncate releases every slot at index from and above.
func (m *Machine) truncate(from int) {
	for i := from; i < len(m.stack); i++ {
		m.stack[i].Release()
		m.stack[i] = MakeNil()
	}
	m.stack = m.stack[:from]
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for a stack slot, creating it
// when no closure has captured that slot yet.
func (m *Machine) captureUpvalue(slot int) *Upvalue {
	for _, u := range m.openUpvalues {
		if u.slot == slot {
			return u
		}
	}
	u := &Upvalue{slot: slot, open: true}
	m.openUpvalues = append(m.openUpvalues, u)
	return u
}

// closeUpvalues closes every open upvalue at stack index from or above:
// the shared stack slot's value moves into the upvalue, which retains
// it on behalf of its closures.
func (m *Machine) closeUpvalues(from int) {
	kept := m.openUpvalues[:0]
	for _, u := range m.openUpvalues {
		if u.slot >= from {
			u.closed = m.stack[u.slot]
			u.closed.Retain()
			u.open = false
			if u.refs == 0 {
				// no closure ever retained it; drop immediately
				u.closed.Release()
				u.closed = MakeNil()
			}
		} else {
			kept = append(kept, u)
		}
	}
	m.openUpvalues = kept
}

func (m *Machine) upvalueGet(u *Upvalue) Value {
	if u.open {
		return m.stack[u.slot]
	}
	return u.closed
}

func (m *Machine) upvalueSet(u *Upvalue, v Value) {
	if u.open {
		v.Retain()
		old := m.stack[u.slot]
		m.stack[u.slot] = v
		old.Release()
		return
	}
	v.Retain()
	old := u.closed
	u.closed = v
	old.Release()
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// Exec runs a chunk's top-level code. The returned value is the
// program's result (an explicit top-level return value, otherwise the
// value of the last top-level expression statement); ownership of it
// transfers to the caller.
func (m *Machine) Exec(chunk *Chunk) (Value, error) {
	chunk.materialize()
	main := newClosure(chunk, chunk.Main())
	fnVal := MakeObject(main)
	defer fnVal.Release()

	// save the enclosing program's result so natives can re-enter Exec
	saved := m.result
	m.result = MakeNil()
	defer func() {
		m.result.Release()
		m.result = saved
	}()

	ret, err := m.Call(fnVal, nil)
	if err != nil {
		return MakeNil(), err
	}
	if !ret.IsNil() {
		m.result.Release()
		m.result = ret
	} else {
		ret.Release()
	}
	out := m.result
	m.result = MakeNil()
	return out, nil
}

// Call invokes a function value with the given arguments and runs it to
// completion. Arguments are non-owning views; ownership of the returned
// value transfers to the caller. Reentrant: native functions may Call
// back into the machine.
func (m *Machine) Call(fn Value, args []Value) (Value, error) {
	if !fn.IsFunction() {
		err := &RuntimeError{Msg: fmt.Sprintf("attempt to call a value of type %s", fn.TypeName())}
		m.errMsg = err.Msg
		m.failed = true
		return MakeNil(), err
	}
	entryFrames := len(m.frames)
	entryStack := len(m.stack)

	m.push(fn)
	for _, a := range args {
		m.push(a)
	}
	if err := m.callValue(len(args)); err != nil {
		m.unwind(entryFrames, entryStack)
		return MakeNil(), err
	}
	if len(m.frames) > entryFrames {
		if err := m.run(entryFrames); err != nil {
			m.unwind(entryFrames, entryStack)
			return MakeNil(), err
		}
	}
	return m.pop(), nil
}

func (m *Machine) unwind(frames, stackTop int) {
	m.frames = m.frames[:frames]
	m.closeUpvalues(stackTop)
	m.truncate(stackTop)
}

// callValue sets up a call whose callee and argc arguments are the top
// of the stack. Native callees complete immediately and leave their
// result on the stack; bytecode callees push a frame for run to
// execute.
func (m *Machine) callValue(argc int) error {
	callee := m.peek(argc)
	if !callee.IsFunction() {
		return m.throw("attempt to call a value of type %s", callee.TypeName())
	}
	fn := callee.Function()

	if fn.IsNative() {
		if len(m.frames) >= m.maxDepth {
			return m.throw("call stack overflow (depth %d)", m.maxDepth)
		}
		argv := m.stack[len(m.stack)-argc:]
		ret := MakeNil()
		m.failed = false
		status := fn.native(&ret, argv, m.ctx)
		if status != 0 {
			if !m.failed {
				m.RuntimeError("native function %s failed", fn.Describe(false))
			}
			return &RuntimeError{Msg: m.errMsg}
		}
		m.truncate(len(m.stack) - argc - 1)
		m.pushOwned(ret)
		return nil
	}

	if len(m.frames) >= m.maxDepth {
		return m.throw("call stack overflow (depth %d)", m.maxDepth)
	}

	arity := fn.proto.Arity
	for argc > arity {
		m.popRelease()
		argc--
	}
	for argc < arity {
		m.pushOwned(MakeNil())
		argc++
	}
	base := len(m.stack) - arity
	for len(m.stack) < base+fn.proto.NumLocals {
		m.pushOwned(MakeNil())
	}
	m.frames = append(m.frames, frame{fn: fn, base: base})
	return nil
}

// returnFrom pops the current frame, closing its upvalues and replacing
// the callee's stack window with the return value.
func (m *Machine) returnFrom(ret Value) {
	f := &m.frames[len(m.frames)-1]
	m.closeUpvalues(f.base)
	m.truncate(f.base - 1) // locals and the callee slot
	m.pushOwned(ret)
	m.frames = m.frames[:len(m.frames)-1]
}

// throw builds a runtime error annotated with the current source line
// and records it as the machine's last error.
func (m *Machine) throw(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if len(m.frames) > 0 {
		f := &m.frames[len(m.frames)-1]
		if line := f.fn.proto.lineAt(f.ip); line > 0 {
			msg = fmt.Sprintf("near line %d: %s", line, msg)
		}
	}
	m.errMsg = msg
	m.failed = true
	return &RuntimeError{Msg: msg}
}

// ---------------------------------------------------------------------------
// The interpreter loop
// ---------------------------------------------------------------------------

// run executes frames until the frame stack shrinks back to entryDepth.
func (m *Machine) run(entryDepth int) error {
	for len(m.frames) > entryDepth {
		f := &m.frames[len(m.frames)-1]
		proto := f.fn.proto
		code := proto.Code

		opIP := f.ip
		op := Opcode(code[f.ip])
		f.ip++

		readByte := func() byte {
			b := code[f.ip]
			f.ip++
			return b
		}
		readUint16 := func() uint16 {
			v := uint16(code[f.ip]) | uint16(code[f.ip+1])<<8
			f.ip += 2
			return v
		}

		switch op {
		case OpPop:
			m.popRelease()

		case OpDup:
			m.push(m.peek(0))

		case OpPushNil:
			m.pushOwned(MakeNil())

		case OpPushTrue:
			m.pushOwned(MakeBool(true))

		case OpPushFalse:
			m.pushOwned(MakeBool(false))

		case OpPushInt8:
			m.pushOwned(MakeInt(int64(int8(readByte()))))

		case OpPushConst:
			m.push(f.fn.chunk.constAt(int(readUint16())))

		case OpGetLocal:
			m.push(m.stack[f.base+int(readByte())])

		case OpSetLocal:
			slot := f.base + int(readByte())
			v := m.pop()
			old := m.stack[slot]
			m.stack[slot] = v
			old.Release()

		case OpGetUpvalue:
			m.push(m.upvalueGet(f.fn.upvalues[readByte()]))

		case OpSetUpvalue:
			u := f.fn.upvalues[readByte()]
			v := m.pop()
			m.upvalueSet(u, v)
			v.Release()

		case OpGetGlobal:
			name := f.fn.chunk.constAt(int(readUint16()))
			m.push(m.globals.Get(name))

		case OpSetGlobal:
			name := f.fn.chunk.constAt(int(readUint16()))
			v := m.pop()
			if err := m.globals.Set(name, v); err != nil {
				v.Release()
				return m.throw("%s", err.Error())
			}
			v.Release()

		case OpCloseUpvalue:
			// local slots stay reserved for the whole call, so only the
			// upvalues move off the stack; the slots themselves remain
			m.closeUpvalues(f.base + int(readByte()))

		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			if err := m.arith(op); err != nil {
				return err
			}

		case OpNeg:
			v := m.pop()
			switch {
			case v.IsInt():
				m.pushOwned(MakeInt(-v.Int()))
			case v.IsFloat():
				m.pushOwned(MakeFloat(-v.Float()))
			default:
				t := v.TypeName()
				v.Release()
				return m.throw("arithmetic on a value of type %s", t)
			}

		case OpNot:
			v := m.pop()
			truthy := v.IsTruthy()
			v.Release()
			m.pushOwned(MakeBool(!truthy))

		case OpConcat:
			b := m.pop()
			a := m.pop()
			if !a.IsString() || !b.IsString() {
				ta, tb := a.TypeName(), b.TypeName()
				a.Release()
				b.Release()
				return m.throw("concatenation of values of type %s and %s", ta, tb)
			}
			s := a.String().Content + b.String().Content
			a.Release()
			b.Release()
			m.pushOwned(MakeString(s))

		case OpEq, OpNe:
			b := m.pop()
			a := m.pop()
			eq := a.Equals(b)
			a.Release()
			b.Release()
			m.pushOwned(MakeBool(eq == (op == OpEq)))

		case OpLt, OpLe, OpGt, OpGe:
			b := m.pop()
			a := m.pop()
			if !a.Comparable(b) {
				ta, tb := a.TypeName(), b.TypeName()
				a.Release()
				b.Release()
				return m.throw("values of type %s and %s are not ordered", ta, tb)
			}
			c := a.Compare(b)
			a.Release()
			b.Release()
			var res bool
			switch op {
			case OpLt:
				res = c < 0
			case OpLe:
				res = c <= 0
			case OpGt:
				res = c > 0
			case OpGe:
				res = c >= 0
			}
			m.pushOwned(MakeBool(res))

		case OpJump:
			off := readUint16()
			f.ip += int(off)

		case OpJumpFalse:
			off := readUint16()
			if !m.peek(0).IsTruthy() {
				f.ip += int(off)
			}

		case OpLoop:
			off := readUint16()
			f.ip -= int(off)

		case OpCall:
			argc := int(readByte())
			if err := m.callValue(argc); err != nil {
				return err
			}

		case OpInvoke:
			nameIdx := readUint16()
			argc := int(readByte())
			name := f.fn.chunk.constAt(int(nameIdx))
			if err := m.invoke(name, argc); err != nil {
				return err
			}

		case OpClosure:
			protoIdx := int(readUint16())
			sub := f.fn.chunk.Protos[protoIdx]
			cl := newClosure(f.fn.chunk, sub)
			for _, desc := range sub.Captures {
				var u *Upvalue
				if desc.IsLocal {
					u = m.captureUpvalue(f.base + int(desc.Index))
				} else {
					u = f.fn.upvalues[desc.Index]
				}
				u.retain()
				cl.upvalues = append(cl.upvalues, u)
			}
			m.pushOwned(MakeObject(cl))

		case OpReturn:
			ret := m.pop()
			m.returnFrom(ret)

		case OpStoreResult:
			v := m.pop()
			m.result.Release()
			m.result = v

		case OpNewArray:
			n := int(readUint16())
			arr := NewArray()
			base := len(m.stack) - n
			for i := base; i < len(m.stack); i++ {
				arr.Push(m.stack[i])
			}
			m.truncate(base)
			m.pushOwned(MakeObject(arr))

		case OpNewHashMap:
			n := int(readUint16())
			hm := NewHashMap()
			base := len(m.stack) - 2*n
			var setErr error
			for i := base; i < len(m.stack); i += 2 {
				if err := hm.Set(m.stack[i], m.stack[i+1]); err != nil && setErr == nil {
					setErr = err
				}
			}
			m.truncate(base)
			if setErr != nil {
				ReleaseObject(hm)
				return m.throw("%s", setErr.Error())
			}
			m.pushOwned(MakeObject(hm))

		case OpIndexGet:
			idx := m.pop()
			recv := m.pop()
			v, err := m.indexGet(recv, idx)
			if err == nil {
				// retain before the receiver goes away: recv may hold
				// the last reference to the container v lives in
				v.Retain()
			}
			idx.Release()
			recv.Release()
			if err != nil {
				return err
			}
			m.pushOwned(v)

		case OpIndexSet:
			// leaves the stored value on the stack: assignment is an
			// expression
			v := m.pop()
			idx := m.pop()
			recv := m.pop()
			err := m.indexSet(recv, idx, v)
			idx.Release()
			recv.Release()
			if err != nil {
				v.Release()
				return err
			}
			m.pushOwned(v)

		default:
			f.ip = opIP
			return m.throw("corrupt bytecode: unknown opcode %d at offset %d", byte(op), opIP)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operator helpers
// ---------------------------------------------------------------------------

func (m *Machine) arith(op Opcode) error {
	b := m.pop()
	a := m.pop()
	defer a.Release()
	defer b.Release()

	if !a.IsNumber() || !b.IsNumber() {
		return m.throw("arithmetic on values of type %s and %s", a.TypeName(), b.TypeName())
	}

	if op == OpMod {
		if !a.IsInt() || !b.IsInt() {
			return m.throw("modulo of non-integer values")
		}
		if b.Int() == 0 {
			return m.throw("modulo by zero")
		}
		m.pushOwned(MakeInt(a.Int() % b.Int()))
		return nil
	}

	if a.IsInt() && b.IsInt() {
		x, y := a.Int(), b.Int()
		switch op {
		case OpAdd:
			m.pushOwned(MakeInt(x + y))
		case OpSub:
			m.pushOwned(MakeInt(x - y))
		case OpMul:
			m.pushOwned(MakeInt(x * y))
		case OpDiv:
			if y == 0 {
				return m.throw("division by zero")
			}
			m.pushOwned(MakeInt(x / y))
		}
		return nil
	}

	x, y := a.Number(), b.Number()
	switch op {
	case OpAdd:
		m.pushOwned(MakeFloat(x + y))
	case OpSub:
		m.pushOwned(MakeFloat(x - y))
	case OpMul:
		m.pushOwned(MakeFloat(x * y))
	case OpDiv:
		m.pushOwned(MakeFloat(x / y))
	}
	return nil
}

// invoke resolves and calls a method on the receiver sitting argc slots
// below the stack top. Hashmap receivers check their own entries before
// the class table, so instances can shadow class methods. The receiver
// is passed to the method as its first argument.
func (m *Machine) invoke(name Value, argc int) error {
	recv := m.peek(argc)

	method := MakeNil()
	if recv.IsHashMap() {
		method = recv.HashMap().Get(name)
	}
	if !method.IsFunction() {
		method = m.classes.lookup(ClassOf(recv), name)
	}
	if !method.IsFunction() {
		return m.throw("%s value does not respond to method %s",
			recv.TypeName(), name.Describe())
	}

	// splice the method in below the receiver so the stack matches the
	// [callee, arg0..argN] call layout, receiver as arg 0
	fnPos := len(m.stack) - argc - 1
	method.Retain()
	m.stack = append(m.stack, MakeNil())
	copy(m.stack[fnPos+1:], m.stack[fnPos:len(m.stack)-1])
	m.stack[fnPos] = method

	return m.callValue(argc + 1)
}

func (m *Machine) indexGet(recv, idx Value) (Value, error) {
	switch {
	case recv.IsArray():
		if !idx.IsInt() {
			return MakeNil(), m.throw("array indices must be integers (got %s)", idx.TypeName())
		}
		v, err := recv.Array().Get(int(idx.Int()))
		if err != nil {
			return MakeNil(), m.throw("%s", err.Error())
		}
		return v, nil
	case recv.IsHashMap():
		return recv.HashMap().Get(idx), nil
	case recv.IsString():
		if !idx.IsInt() {
			return MakeNil(), m.throw("string indices must be integers (got %s)", idx.TypeName())
		}
		s := recv.String().Content
		i := int(idx.Int())
		if i < 0 || i >= len(s) {
			return MakeNil(), m.throw("string index %d out of bounds [0, %d)", i, len(s))
		}
		return MakeInt(int64(s[i])), nil
	default:
		return MakeNil(), m.throw("value of type %s is not indexable", recv.TypeName())
	}
}

func (m *Machine) indexSet(recv, idx, v Value) error {
	switch {
	case recv.IsArray():
		if !idx.IsInt() {
			return m.throw("array indices must be integers (got %s)", idx.TypeName())
		}
		if err := recv.Array().Set(int(idx.Int()), v); err != nil {
			return m.throw("%s", err.Error())
		}
		return nil
	case recv.IsHashMap():
		if err := recv.HashMap().Set(idx, v); err != nil {
			return m.throw("%s", err.Error())
		}
		return nil
	default:
		return m.throw("value of type %s is not indexable", recv.TypeName())
	}
}
