package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Machine execution over hand-assembled chunks
// ---------------------------------------------------------------------------

// assemble builds a single-proto chunk whose body is produced by emit.
// The body must leave its result via OpStoreResult.
func assemble(t *testing.T, emit func(b *Builder)) *Chunk {
	t.Helper()
	chunk := &Chunk{Name: "<test>"}
	main := &Proto{}
	chunk.Protos = append(chunk.Protos, main)
	b := NewBuilder(chunk)
	emit(b)
	b.Emit(OpPushNil)
	b.Emit(OpReturn)
	b.Finish(main)
	return chunk
}

func execChunk(t *testing.T, chunk *Chunk) (Value, *Context) {
	t.Helper()
	ctx := NewContext(nil)
	t.Cleanup(ctx.Close)
	v, err := ctx.ExecChunk(chunk)
	if err != nil {
		t.Fatalf("ExecChunk: %v", err)
	}
	return v, ctx
}

func TestMachineArithmetic(t *testing.T) {
	chunk := assemble(t, func(b *Builder) {
		// (3 + 4) * 2
		b.Emit(OpPushInt8)
		b.EmitByte(3)
		b.Emit(OpPushInt8)
		b.EmitByte(4)
		b.Emit(OpAdd)
		b.Emit(OpPushInt8)
		b.EmitByte(2)
		b.Emit(OpMul)
		b.Emit(OpStoreResult)
	})
	v, _ := execChunk(t, chunk)
	defer v.Release()
	if !v.IsInt() || v.Int() != 14 {
		t.Errorf("result = %s, want 14", v.DebugDescribe())
	}
}

func TestMachineMixedArithmeticYieldsFloat(t *testing.T) {
	chunk := &Chunk{Name: "<test>"}
	main := &Proto{}
	chunk.Protos = append(chunk.Protos, main)
	b := NewBuilder(chunk)
	idx, err := b.AddConst(Constant{Kind: ConstFloat, Float: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	b.Emit(OpPushInt8)
	b.EmitByte(1)
	b.Emit(OpPushConst)
	b.EmitUint16(idx)
	b.Emit(OpAdd)
	b.Emit(OpStoreResult)
	b.Emit(OpPushNil)
	b.Emit(OpReturn)
	b.Finish(main)

	v, _ := execChunk(t, chunk)
	defer v.Release()
	if !v.IsFloat() || v.Float() != 1.5 {
		t.Errorf("result = %s, want 1.5", v.DebugDescribe())
	}
}

func TestMachineDivisionByZero(t *testing.T) {
	chunk := assemble(t, func(b *Builder) {
		b.Emit(OpPushInt8)
		b.EmitByte(1)
		b.Emit(OpPushInt8)
		b.EmitByte(0)
		b.Emit(OpDiv)
		b.Emit(OpStoreResult)
	})
	ctx := NewContext(nil)
	defer ctx.Close()
	if _, err := ctx.ExecChunk(chunk); err == nil {
		t.Fatal("division by zero should fail")
	}
	if ctx.ErrorStage() != StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
	if !strings.Contains(ctx.ErrorMessage(), "division by zero") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
}

func TestMachineUncomparableOperands(t *testing.T) {
	chunk := &Chunk{Name: "<test>"}
	main := &Proto{}
	chunk.Protos = append(chunk.Protos, main)
	b := NewBuilder(chunk)
	idx, _ := b.AddConst(Constant{Kind: ConstString, Str: "s"})
	b.Emit(OpPushInt8)
	b.EmitByte(1)
	b.Emit(OpPushConst)
	b.EmitUint16(idx)
	b.Emit(OpLt)
	b.Emit(OpStoreResult)
	b.Emit(OpPushNil)
	b.Emit(OpReturn)
	b.Finish(main)

	ctx := NewContext(nil)
	defer ctx.Close()
	if _, err := ctx.ExecChunk(chunk); err == nil {
		t.Fatal("comparing int and string should fail")
	}
	if ctx.ErrorStage() != StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
}

func TestCallFuncNative(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	add := NewNativeFunction("add", func(ret *Value, argv []Value, c *Context) int {
		if len(argv) != 2 {
			c.RuntimeError("add: expecting 2 arguments")
			return -1
		}
		*ret = MakeInt(argv[0].Int() + argv[1].Int())
		return 0
	})
	fn := MakeObject(add)
	defer fn.Release()

	v, err := ctx.CallFunc(fn, []Value{MakeInt(2), MakeInt(3)})
	if err != nil {
		t.Fatalf("CallFunc: %v", err)
	}
	defer v.Release()
	if v.Int() != 5 {
		t.Errorf("CallFunc = %s, want 5", v.DebugDescribe())
	}

	// a failing native surfaces its recorded message
	_, err = ctx.CallFunc(fn, nil)
	if err == nil {
		t.Fatal("native failure should surface")
	}
	if ctx.ErrorStage() != StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
	if !strings.Contains(ctx.ErrorMessage(), "expecting 2 arguments") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
}

func TestCallFuncNonFunction(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()
	if _, err := ctx.CallFunc(MakeInt(1), nil); err == nil {
		t.Fatal("calling an int should fail")
	}
	if ctx.ErrorStage() != StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
}

func TestGlobalsSurviveAcrossChunks(t *testing.T) {
	ctx := NewContext(nil)
	defer ctx.Close()

	v := MakeInt(42)
	ctx.SetGlobal("answer", v)
	if got := ctx.GetGlobal("answer"); got.Int() != 42 {
		t.Errorf("GetGlobal = %s", got.DebugDescribe())
	}
	if !ctx.GetGlobal("missing").IsNil() {
		t.Error("unknown global should be nil")
	}
}

// ---------------------------------------------------------------------------
// Object file roundtrip
// ---------------------------------------------------------------------------

func TestWireRoundTrip(t *testing.T) {
	chunk := &Chunk{Name: "prog"}
	main := &Proto{NumLocals: 0}
	chunk.Protos = append(chunk.Protos, main)
	b := NewBuilder(chunk)
	idx, _ := b.AddConst(Constant{Kind: ConstString, Str: "hello "})
	idx2, _ := b.AddConst(Constant{Kind: ConstString, Str: "world"})
	b.Emit(OpPushConst)
	b.EmitUint16(idx)
	b.Emit(OpPushConst)
	b.EmitUint16(idx2)
	b.Emit(OpConcat)
	b.Emit(OpStoreResult)
	b.Emit(OpPushNil)
	b.Emit(OpReturn)
	b.Finish(main)

	data, err := MarshalChunk(chunk)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	back, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}

	v, _ := execChunk(t, back)
	defer v.Release()
	if !v.IsString() || v.String().Content != "hello world" {
		t.Errorf("result = %s, want \"hello world\"", v.DebugDescribe())
	}

	// corrupted input is rejected
	if _, err := UnmarshalChunk([]byte("junk")); err == nil {
		t.Error("bad magic should be rejected")
	}
	data[4] = 99
	if _, err := UnmarshalChunk(data); err == nil {
		t.Error("unknown version should be rejected")
	}
}
