package compiler

import (
	"fmt"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

const (
	maxLocals = 256
	maxArgs   = 255
)

type local struct {
	name     string
	depth    int
	slot     int
	captured bool
}

type loopCtx struct {
	breaks    []int // forward jump operands to patch past the loop
	continues []int // forward jump operands to patch to the post/cond
}

// funcCompiler holds the per-function state while generating one proto.
// Local slots are assigned once per declaration and never reused, so a
// closure capturing a slot always sees the variable it closed over.
type funcCompiler struct {
	enclosing *funcCompiler
	b         *vm.Builder
	proto     *vm.Proto
	locals    []local
	depth     int
	loops     []loopCtx
	captures  []vm.CaptureDesc
	maxSlots  int
}

func newFuncCompiler(enclosing *funcCompiler, chunk *vm.Chunk, proto *vm.Proto) *funcCompiler {
	return &funcCompiler{
		enclosing: enclosing,
		b:         vm.NewBuilder(chunk),
		proto:     proto,
	}
}

func (fc *funcCompiler) isMain() bool { return fc.enclosing == nil }

func (fc *funcCompiler) declareLocal(line int, name string) (int, error) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].depth < fc.depth {
			break
		}
		if fc.locals[i].name == name {
			return 0, &vm.SemanticError{Line: line,
				Msg: fmt.Sprintf("variable %q is already declared in this scope", name)}
		}
	}
	if fc.maxSlots >= maxLocals {
		return 0, &vm.SemanticError{Line: line,
			Msg: fmt.Sprintf("too many local variables in one function (max %d)", maxLocals)}
	}
	slot := fc.maxSlots
	fc.maxSlots++
	fc.locals = append(fc.locals, local{name: name, depth: fc.depth, slot: slot})
	return slot, nil
}

func (fc *funcCompiler) resolveLocal(name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return fc.locals[i].slot
		}
	}
	return -1
}

// resolveUpvalue resolves name through enclosing functions, recording
// the capture chain on the way down.
func (fc *funcCompiler) resolveUpvalue(name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if slot := fc.enclosing.resolveLocal(name); slot >= 0 {
		fc.enclosing.markCaptured(slot)
		return fc.addCapture(vm.CaptureDesc{IsLocal: true, Index: uint8(slot)})
	}
	if idx := fc.enclosing.resolveUpvalue(name); idx >= 0 {
		return fc.addCapture(vm.CaptureDesc{IsLocal: false, Index: uint8(idx)})
	}
	return -1
}

func (fc *funcCompiler) addCapture(c vm.CaptureDesc) int {
	for i, have := range fc.captures {
		if have == c {
			return i
		}
	}
	fc.captures = append(fc.captures, c)
	return len(fc.captures) - 1
}

func (fc *funcCompiler) markCaptured(slot int) {
	for i := range fc.locals {
		if fc.locals[i].slot == slot {
			fc.locals[i].captured = true
			return
		}
	}
}

func (fc *funcCompiler) beginScope() { fc.depth++ }

// endScope discards the scope's locals. Captured ones get their open
// upvalues closed so closures made in a loop body keep the iteration's
// value rather than sharing the slot.
func (fc *funcCompiler) endScope() {
	fc.depth--
	closeFrom := -1
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.depth {
		if fc.locals[len(fc.locals)-1].captured {
			closeFrom = fc.locals[len(fc.locals)-1].slot
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
	if closeFrom >= 0 {
		fc.b.Emit(vm.OpCloseUpvalue)
		fc.b.EmitByte(byte(closeFrom))
	}
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

type codegen struct {
	chunk *vm.Chunk
}

// generate compiles a parsed program into a chunk. Protos[0] is the
// program body.
func generate(name string, prog []stmt) (*vm.Chunk, error) {
	chunk := &vm.Chunk{Name: name}
	mainProto := &vm.Proto{Name: ""}
	chunk.Protos = append(chunk.Protos, mainProto)

	g := &codegen{chunk: chunk}
	fc := newFuncCompiler(nil, chunk, mainProto)
	for _, s := range prog {
		if err := g.stmt(fc, s); err != nil {
			return nil, err
		}
	}
	g.finishFunc(fc)
	return chunk, nil
}

// finishFunc appends the implicit nil return and seals the proto.
func (g *codegen) finishFunc(fc *funcCompiler) {
	fc.b.Emit(vm.OpPushNil)
	fc.b.Emit(vm.OpReturn)
	fc.proto.NumLocals = fc.maxSlots
	fc.proto.Captures = fc.captures
	fc.b.Finish(fc.proto)
}

// emitJump emits op with a placeholder offset, returning the operand
// position for patchJump.
func (g *codegen) emitJump(fc *funcCompiler, op vm.Opcode) int {
	fc.b.Emit(op)
	at := fc.b.Pos()
	fc.b.EmitUint16(0xffff)
	return at
}

func (g *codegen) patchJump(fc *funcCompiler, at int) error {
	dist := fc.b.Pos() - (at + 2)
	if dist > 0xffff {
		return &vm.SemanticError{Msg: "jump distance too large"}
	}
	fc.b.PatchUint16(at, uint16(dist))
	return nil
}

func (g *codegen) emitLoop(fc *funcCompiler, target int) error {
	fc.b.Emit(vm.OpLoop)
	at := fc.b.Pos()
	dist := at + 2 - target
	if dist > 0xffff {
		return &vm.SemanticError{Msg: "loop body too large"}
	}
	fc.b.EmitUint16(uint16(dist))
	return nil
}

func (g *codegen) emitConst(fc *funcCompiler, k vm.Constant) error {
	idx, err := fc.b.AddConst(k)
	if err != nil {
		return err
	}
	fc.b.Emit(vm.OpPushConst)
	fc.b.EmitUint16(idx)
	return nil
}

func (g *codegen) nameConst(fc *funcCompiler, name string) (uint16, error) {
	return fc.b.AddConst(vm.Constant{Kind: vm.ConstString, Str: name})
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *codegen) stmt(fc *funcCompiler, s stmt) error {
	fc.b.SetLine(s.startLine())
	switch s := s.(type) {
	case *varDeclStmt:
		return g.varDecl(fc, s)
	case *exprStmt:
		if err := g.expr(fc, s.X); err != nil {
			return err
		}
		if fc.isMain() {
			fc.b.Emit(vm.OpStoreResult)
		} else {
			fc.b.Emit(vm.OpPop)
		}
		return nil
	case *blockStmt:
		fc.beginScope()
		for _, inner := range s.Stmts {
			if err := g.stmt(fc, inner); err != nil {
				return err
			}
		}
		fc.endScope()
		return nil
	case *ifStmt:
		return g.ifStmt(fc, s)
	case *whileStmt:
		return g.whileStmt(fc, s)
	case *forStmt:
		return g.forStmt(fc, s)
	case *returnStmt:
		if s.X != nil {
			if err := g.expr(fc, s.X); err != nil {
				return err
			}
		} else {
			fc.b.Emit(vm.OpPushNil)
		}
		fc.b.Emit(vm.OpReturn)
		return nil
	case *breakStmt:
		if len(fc.loops) == 0 {
			return &vm.SemanticError{Line: s.Line, Msg: "'break' outside of a loop"}
		}
		loop := &fc.loops[len(fc.loops)-1]
		loop.breaks = append(loop.breaks, g.emitJump(fc, vm.OpJump))
		return nil
	case *continueStmt:
		if len(fc.loops) == 0 {
			return &vm.SemanticError{Line: s.Line, Msg: "'continue' outside of a loop"}
		}
		loop := &fc.loops[len(fc.loops)-1]
		loop.continues = append(loop.continues, g.emitJump(fc, vm.OpJump))
		return nil
	case *funcDeclStmt:
		return g.funcDecl(fc, s)
	default:
		panic(fmt.Sprintf("codegen: unknown statement %T", s))
	}
}

func (g *codegen) varDecl(fc *funcCompiler, s *varDeclStmt) error {
	// program-scope variables are globals; everything else is a local
	if fc.isMain() && fc.depth == 0 {
		if s.Init != nil {
			if err := g.expr(fc, s.Init); err != nil {
				return err
			}
		} else {
			fc.b.Emit(vm.OpPushNil)
		}
		idx, err := g.nameConst(fc, s.Name)
		if err != nil {
			return err
		}
		fc.b.Emit(vm.OpSetGlobal)
		fc.b.EmitUint16(idx)
		return nil
	}

	slot, err := fc.declareLocal(s.Line, s.Name)
	if err != nil {
		return err
	}
	if s.Init != nil {
		if err := g.expr(fc, s.Init); err != nil {
			return err
		}
	} else {
		fc.b.Emit(vm.OpPushNil)
	}
	fc.b.Emit(vm.OpSetLocal)
	fc.b.EmitByte(byte(slot))
	return nil
}

func (g *codegen) ifStmt(fc *funcCompiler, s *ifStmt) error {
	if err := g.expr(fc, s.Cond); err != nil {
		return err
	}
	elseJump := g.emitJump(fc, vm.OpJumpFalse)
	fc.b.Emit(vm.OpPop)
	if err := g.stmt(fc, s.Then); err != nil {
		return err
	}
	endJump := g.emitJump(fc, vm.OpJump)
	if err := g.patchJump(fc, elseJump); err != nil {
		return err
	}
	fc.b.Emit(vm.OpPop)
	if s.Else != nil {
		if err := g.stmt(fc, s.Else); err != nil {
			return err
		}
	}
	return g.patchJump(fc, endJump)
}

func (g *codegen) whileStmt(fc *funcCompiler, s *whileStmt) error {
	start := fc.b.Pos()
	if err := g.expr(fc, s.Cond); err != nil {
		return err
	}
	exitJump := g.emitJump(fc, vm.OpJumpFalse)
	fc.b.Emit(vm.OpPop)

	fc.loops = append(fc.loops, loopCtx{})
	if err := g.stmt(fc, s.Body); err != nil {
		return err
	}
	loop := fc.loops[len(fc.loops)-1]
	fc.loops = fc.loops[:len(fc.loops)-1]

	// continue re-tests the condition
	for _, at := range loop.continues {
		if err := g.patchJump(fc, at); err != nil {
			return err
		}
	}
	if err := g.emitLoop(fc, start); err != nil {
		return err
	}
	if err := g.patchJump(fc, exitJump); err != nil {
		return err
	}
	fc.b.Emit(vm.OpPop)
	for _, at := range loop.breaks {
		if err := g.patchJump(fc, at); err != nil {
			return err
		}
	}
	return nil
}

func (g *codegen) forStmt(fc *funcCompiler, s *forStmt) error {
	fc.beginScope()
	defer fc.endScope()

	if s.Init != nil {
		if err := g.stmt(fc, s.Init); err != nil {
			return err
		}
	}

	start := fc.b.Pos()
	if s.Cond != nil {
		if err := g.expr(fc, s.Cond); err != nil {
			return err
		}
	} else {
		fc.b.Emit(vm.OpPushTrue)
	}
	exitJump := g.emitJump(fc, vm.OpJumpFalse)
	fc.b.Emit(vm.OpPop)

	fc.loops = append(fc.loops, loopCtx{})
	if err := g.stmt(fc, s.Body); err != nil {
		return err
	}
	loop := fc.loops[len(fc.loops)-1]
	fc.loops = fc.loops[:len(fc.loops)-1]

	// continue lands on the post expression
	for _, at := range loop.continues {
		if err := g.patchJump(fc, at); err != nil {
			return err
		}
	}
	if s.Post != nil {
		if err := g.expr(fc, s.Post); err != nil {
			return err
		}
		fc.b.Emit(vm.OpPop)
	}
	if err := g.emitLoop(fc, start); err != nil {
		return err
	}
	if err := g.patchJump(fc, exitJump); err != nil {
		return err
	}
	fc.b.Emit(vm.OpPop)
	for _, at := range loop.breaks {
		if err := g.patchJump(fc, at); err != nil {
			return err
		}
	}
	return nil
}

func (g *codegen) funcDecl(fc *funcCompiler, s *funcDeclStmt) error {
	// program-scope definitions are globals, so later programs in the
	// same context can call them; nested definitions are locals
	if fc.isMain() && fc.depth == 0 {
		if err := g.funcLit(fc, s.Fn); err != nil {
			return err
		}
		idx, err := g.nameConst(fc, s.Name)
		if err != nil {
			return err
		}
		fc.b.Emit(vm.OpSetGlobal)
		fc.b.EmitUint16(idx)
		return nil
	}

	// declared before its body compiles, so it can call itself
	slot, err := fc.declareLocal(s.Line, s.Name)
	if err != nil {
		return err
	}
	if err := g.funcLit(fc, s.Fn); err != nil {
		return err
	}
	fc.b.Emit(vm.OpSetLocal)
	fc.b.EmitByte(byte(slot))
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (g *codegen) expr(fc *funcCompiler, e expr) error {
	fc.b.SetLine(e.startLine())
	switch e := e.(type) {
	case *nilLit:
		fc.b.Emit(vm.OpPushNil)
		return nil
	case *boolLit:
		if e.Val {
			fc.b.Emit(vm.OpPushTrue)
		} else {
			fc.b.Emit(vm.OpPushFalse)
		}
		return nil
	case *intLit:
		if e.Val >= -128 && e.Val <= 127 {
			fc.b.Emit(vm.OpPushInt8)
			fc.b.EmitByte(byte(int8(e.Val)))
			return nil
		}
		return g.emitConst(fc, vm.Constant{Kind: vm.ConstInt, Int: e.Val})
	case *floatLit:
		return g.emitConst(fc, vm.Constant{Kind: vm.ConstFloat, Float: e.Val})
	case *stringLit:
		return g.emitConst(fc, vm.Constant{Kind: vm.ConstString, Str: e.Val})

	case *identExpr:
		if slot := fc.resolveLocal(e.Name); slot >= 0 {
			fc.b.Emit(vm.OpGetLocal)
			fc.b.EmitByte(byte(slot))
			return nil
		}
		if idx := fc.resolveUpvalue(e.Name); idx >= 0 {
			fc.b.Emit(vm.OpGetUpvalue)
			fc.b.EmitByte(byte(idx))
			return nil
		}
		idx, err := g.nameConst(fc, e.Name)
		if err != nil {
			return err
		}
		fc.b.Emit(vm.OpGetGlobal)
		fc.b.EmitUint16(idx)
		return nil

	case *unaryExpr:
		if err := g.expr(fc, e.X); err != nil {
			return err
		}
		if e.Op == tokMinus {
			fc.b.Emit(vm.OpNeg)
		} else {
			fc.b.Emit(vm.OpNot)
		}
		return nil

	case *binaryExpr:
		if err := g.expr(fc, e.X); err != nil {
			return err
		}
		if err := g.expr(fc, e.Y); err != nil {
			return err
		}
		fc.b.Emit(binaryOpcode(e.Op))
		return nil

	case *logicalExpr:
		return g.logical(fc, e)

	case *assignExpr:
		return g.assign(fc, e)

	case *indexExpr:
		if err := g.expr(fc, e.X); err != nil {
			return err
		}
		if err := g.expr(fc, e.Key); err != nil {
			return err
		}
		fc.b.Emit(vm.OpIndexGet)
		return nil

	case *memberExpr:
		if err := g.expr(fc, e.X); err != nil {
			return err
		}
		if err := g.emitConst(fc, vm.Constant{Kind: vm.ConstString, Str: e.Name}); err != nil {
			return err
		}
		fc.b.Emit(vm.OpIndexGet)
		return nil

	case *callExpr:
		if len(e.Args) > maxArgs {
			return &vm.SemanticError{Line: e.Line,
				Msg: fmt.Sprintf("too many arguments in call (max %d)", maxArgs)}
		}
		if err := g.expr(fc, e.Callee); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := g.expr(fc, a); err != nil {
				return err
			}
		}
		fc.b.Emit(vm.OpCall)
		fc.b.EmitByte(byte(len(e.Args)))
		return nil

	case *methodCallExpr:
		if len(e.Args) > maxArgs-1 {
			return &vm.SemanticError{Line: e.Line,
				Msg: fmt.Sprintf("too many arguments in call (max %d)", maxArgs-1)}
		}
		if err := g.expr(fc, e.Recv); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := g.expr(fc, a); err != nil {
				return err
			}
		}
		idx, err := g.nameConst(fc, e.Name)
		if err != nil {
			return err
		}
		fc.b.Emit(vm.OpInvoke)
		fc.b.EmitUint16(idx)
		fc.b.EmitByte(byte(len(e.Args)))
		return nil

	case *arrayLit:
		for _, el := range e.Elems {
			if err := g.expr(fc, el); err != nil {
				return err
			}
		}
		fc.b.Emit(vm.OpNewArray)
		fc.b.EmitUint16(uint16(len(e.Elems)))
		return nil

	case *mapLit:
		for i := range e.Keys {
			if err := g.expr(fc, e.Keys[i]); err != nil {
				return err
			}
			if err := g.expr(fc, e.Vals[i]); err != nil {
				return err
			}
		}
		fc.b.Emit(vm.OpNewHashMap)
		fc.b.EmitUint16(uint16(len(e.Keys)))
		return nil

	case *funcLit:
		return g.funcLit(fc, e)

	default:
		panic(fmt.Sprintf("codegen: unknown expression %T", e))
	}
}

func binaryOpcode(op tokenKind) vm.Opcode {
	switch op {
	case tokPlus:
		return vm.OpAdd
	case tokMinus:
		return vm.OpSub
	case tokStar:
		return vm.OpMul
	case tokSlash:
		return vm.OpDiv
	case tokPercent:
		return vm.OpMod
	case tokDotDot:
		return vm.OpConcat
	case tokEq:
		return vm.OpEq
	case tokNe:
		return vm.OpNe
	case tokLt:
		return vm.OpLt
	case tokLe:
		return vm.OpLe
	case tokGt:
		return vm.OpGt
	case tokGe:
		return vm.OpGe
	}
	panic(fmt.Sprintf("codegen: no opcode for %v", op))
}

func (g *codegen) logical(fc *funcCompiler, e *logicalExpr) error {
	if err := g.expr(fc, e.X); err != nil {
		return err
	}
	if e.Op == tokAndAnd {
		short := g.emitJump(fc, vm.OpJumpFalse)
		fc.b.Emit(vm.OpPop)
		if err := g.expr(fc, e.Y); err != nil {
			return err
		}
		return g.patchJump(fc, short)
	}
	// ||: falsy falls through to the right operand
	rhs := g.emitJump(fc, vm.OpJumpFalse)
	end := g.emitJump(fc, vm.OpJump)
	if err := g.patchJump(fc, rhs); err != nil {
		return err
	}
	fc.b.Emit(vm.OpPop)
	if err := g.expr(fc, e.Y); err != nil {
		return err
	}
	return g.patchJump(fc, end)
}

func (g *codegen) assign(fc *funcCompiler, e *assignExpr) error {
	switch target := e.Target.(type) {
	case *identExpr:
		if err := g.expr(fc, e.Value); err != nil {
			return err
		}
		fc.b.Emit(vm.OpDup)
		if slot := fc.resolveLocal(target.Name); slot >= 0 {
			fc.b.Emit(vm.OpSetLocal)
			fc.b.EmitByte(byte(slot))
			return nil
		}
		if idx := fc.resolveUpvalue(target.Name); idx >= 0 {
			fc.b.Emit(vm.OpSetUpvalue)
			fc.b.EmitByte(byte(idx))
			return nil
		}
		idx, err := g.nameConst(fc, target.Name)
		if err != nil {
			return err
		}
		fc.b.Emit(vm.OpSetGlobal)
		fc.b.EmitUint16(idx)
		return nil

	case *indexExpr:
		if err := g.expr(fc, target.X); err != nil {
			return err
		}
		if err := g.expr(fc, target.Key); err != nil {
			return err
		}
		if err := g.expr(fc, e.Value); err != nil {
			return err
		}
		fc.b.Emit(vm.OpIndexSet)
		return nil

	case *memberExpr:
		if err := g.expr(fc, target.X); err != nil {
			return err
		}
		if err := g.emitConst(fc, vm.Constant{Kind: vm.ConstString, Str: target.Name}); err != nil {
			return err
		}
		if err := g.expr(fc, e.Value); err != nil {
			return err
		}
		fc.b.Emit(vm.OpIndexSet)
		return nil

	default:
		return &vm.SemanticError{Line: e.Line, Msg: "assignment to a non-lvalue expression"}
	}
}

func (g *codegen) funcLit(fc *funcCompiler, e *funcLit) error {
	if len(g.chunk.Protos) >= 1<<16 {
		return &vm.SemanticError{Line: e.Line, Msg: "too many functions in one program"}
	}
	proto := &vm.Proto{Name: e.Name, Arity: len(e.Params)}
	g.chunk.Protos = append(g.chunk.Protos, proto)
	protoIdx := uint16(len(g.chunk.Protos) - 1)

	sub := newFuncCompiler(fc, g.chunk, proto)
	sub.beginScope()
	for _, param := range e.Params {
		if _, err := sub.declareLocal(e.Line, param); err != nil {
			return &vm.SemanticError{Line: e.Line,
				Msg: fmt.Sprintf("duplicate parameter %q", param)}
		}
	}
	for _, s := range e.Body.Stmts {
		if err := g.stmt(sub, s); err != nil {
			return err
		}
	}
	g.finishFunc(sub)

	fc.b.SetLine(e.Line)
	fc.b.Emit(vm.OpClosure)
	fc.b.EmitUint16(protoIdx)
	return nil
}
