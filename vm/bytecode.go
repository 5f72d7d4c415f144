package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

// Opcode is a single byte instruction tag. Multi-byte operands follow
// the opcode in little-endian order.
type Opcode byte

const (
	// stack shuffling
	OpPop Opcode = iota
	OpDup

	// pushing values
	OpPushNil
	OpPushTrue
	OpPushFalse
	OpPushInt8  // s8 immediate
	OpPushConst // u16 constant index

	// variables
	OpGetLocal      // u8 slot
	OpSetLocal      // u8 slot
	OpGetUpvalue    // u8 index
	OpSetUpvalue    // u8 index
	OpGetGlobal     // u16 name constant
	OpSetGlobal     // u16 name constant
	OpCloseUpvalue  // u8 slot; closes open upvalues at or above the slot

	// arithmetic and logic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpConcat

	// comparison
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// control flow
	OpJump      // u16 forward offset
	OpJumpFalse // u16 forward offset, peeks the condition
	OpLoop      // u16 backward offset

	// calls
	OpCall        // u8 argc
	OpInvoke      // u16 method-name constant, u8 argc
	OpClosure     // u16 proto index
	OpReturn      // returns the top of stack
	OpStoreResult // records top of stack as the program result, pops

	// containers
	OpNewArray   // u16 element count, elements on stack
	OpNewHashMap // u16 pair count, key-value pairs on stack
	OpIndexGet
	OpIndexSet
)

type opcodeInfo struct {
	name     string
	operands int // operand bytes following the opcode
}

var opcodeTable = map[Opcode]opcodeInfo{
	OpPop:          {"pop", 0},
	OpDup:          {"dup", 0},
	OpPushNil:      {"push-nil", 0},
	OpPushTrue:     {"push-true", 0},
	OpPushFalse:    {"push-false", 0},
	OpPushInt8:     {"push-int8", 1},
	OpPushConst:    {"push-const", 2},
	OpGetLocal:     {"get-local", 1},
	OpSetLocal:     {"set-local", 1},
	OpGetUpvalue:   {"get-upvalue", 1},
	OpSetUpvalue:   {"set-upvalue", 1},
	OpGetGlobal:    {"get-global", 2},
	OpSetGlobal:    {"set-global", 2},
	OpCloseUpvalue: {"close-upvalue", 1},
	OpAdd:          {"add", 0},
	OpSub:          {"sub", 0},
	OpMul:          {"mul", 0},
	OpDiv:          {"div", 0},
	OpMod:          {"mod", 0},
	OpNeg:          {"neg", 0},
	OpNot:          {"not", 0},
	OpConcat:       {"concat", 0},
	OpEq:           {"eq", 0},
	OpNe:           {"ne", 0},
	OpLt:           {"lt", 0},
	OpLe:           {"le", 0},
	OpGt:           {"gt", 0},
	OpGe:           {"ge", 0},
	OpJump:         {"jump", 2},
	OpJumpFalse:    {"jump-false", 2},
	OpLoop:         {"loop", 2},
	OpCall:         {"call", 1},
	OpInvoke:       {"invoke", 3},
	OpClosure:      {"closure", 2},
	OpReturn:       {"return", 0},
	OpStoreResult:  {"store-result", 0},
	OpNewArray:     {"new-array", 2},
	OpNewHashMap:   {"new-hashmap", 2},
	OpIndexGet:     {"index-get", 0},
	OpIndexSet:     {"index-set", 0},
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("opcode(%d)", byte(op))
}

// ---------------------------------------------------------------------------
// Constants, protos and chunks
// ---------------------------------------------------------------------------

// ConstKind discriminates the entries of a chunk's constant pool.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
)

// Constant is one entry of a chunk's constant pool, in its serialized
// form. Runtime values are materialized once per chunk at load time.
type Constant struct {
	Kind  ConstKind `cbor:"k"`
	Int   int64     `cbor:"i,omitempty"`
	Float float64   `cbor:"f,omitempty"`
	Str   string    `cbor:"s,omitempty"`
}

// CaptureDesc tells the machine where a closure's upvalue comes from:
// a local slot of the enclosing frame, or an upvalue of the enclosing
// closure.
type CaptureDesc struct {
	IsLocal bool  `cbor:"l"`
	Index   uint8 `cbor:"i"`
}

// Proto is the compiled form of a single function body.
type Proto struct {
	Name      string        `cbor:"n,omitempty"`
	Arity     int           `cbor:"a"`
	NumLocals int           `cbor:"v"`
	Code      []byte        `cbor:"c"`
	Lines     []int32       `cbor:"ln,omitempty"`
	Captures  []CaptureDesc `cbor:"u,omitempty"`
}

// lineAt returns the source line for the instruction at offset, or 0
// when no line table was emitted.
func (p *Proto) lineAt(offset int) int {
	if offset < 0 || offset >= len(p.Lines) {
		return 0
	}
	return int(p.Lines[offset])
}

// Chunk is one compiled translation unit: a flat list of protos sharing a
// constant pool. Protos[0] is the top-level program body.
type Chunk struct {
	Name   string     `cbor:"n,omitempty"`
	Consts []Constant `cbor:"k"`
	Protos []*Proto   `cbor:"p"`

	values     []Value // materialized constant pool, owned by the chunk
	constIndex map[Constant]uint16
}

// Main returns the top-level proto.
func (c *Chunk) Main() *Proto {
	return c.Protos[0]
}

// materialize builds the runtime constant pool. Idempotent; the chunk
// owns one reference to each materialized value until released.
func (c *Chunk) materialize() {
	if c.values != nil || len(c.Consts) == 0 {
		return
	}
	c.values = make([]Value, len(c.Consts))
	for i, k := range c.Consts {
		switch k.Kind {
		case ConstInt:
			c.values[i] = MakeInt(k.Int)
		case ConstFloat:
			c.values[i] = MakeFloat(k.Float)
		case ConstString:
			c.values[i] = MakeString(k.Str)
		default:
			panic(fmt.Sprintf("materialize: unknown constant kind %d", k.Kind))
		}
	}
}

// constAt returns a non-owning view of the materialized constant at i.
func (c *Chunk) constAt(i int) Value {
	return c.values[i]
}

// release drops the chunk's materialized constants.
func (c *Chunk) release() {
	for i := range c.values {
		c.values[i].Release()
	}
	c.values = nil
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder accumulates bytecode and the shared constant pool for one
// chunk while the code generator walks a program.
type Builder struct {
	code  []byte
	lines []int32
	line  int32

	chunk *Chunk
}

// NewBuilder starts a builder for proto bodies that share chunk's
// constant pool. Builders for nested function bodies share the
// interning table through the chunk.
func NewBuilder(chunk *Chunk) *Builder {
	if chunk.constIndex == nil {
		chunk.constIndex = make(map[Constant]uint16)
	}
	return &Builder{chunk: chunk}
}

// SetLine records the source line attributed to subsequently emitted
// bytes.
func (b *Builder) SetLine(line int) {
	b.line = int32(line)
}

// Pos returns the offset the next byte will be written at.
func (b *Builder) Pos() int {
	return len(b.code)
}

// Emit appends an opcode.
func (b *Builder) Emit(op Opcode) {
	b.code = append(b.code, byte(op))
	b.lines = append(b.lines, b.line)
}

// EmitByte appends a raw operand byte.
func (b *Builder) EmitByte(v byte) {
	b.code = append(b.code, v)
	b.lines = append(b.lines, b.line)
}

// EmitUint16 appends a 16-bit operand, little-endian.
func (b *Builder) EmitUint16(v uint16) {
	b.EmitByte(byte(v))
	b.EmitByte(byte(v >> 8))
}

// PatchUint16 overwrites a previously emitted 16-bit operand at offset.
func (b *Builder) PatchUint16(offset int, v uint16) {
	b.code[offset] = byte(v)
	b.code[offset+1] = byte(v >> 8)
}

// AddConst interns k in the chunk's constant pool and returns its
// index. Identical constants share one slot.
func (b *Builder) AddConst(k Constant) (uint16, error) {
	if i, ok := b.chunk.constIndex[k]; ok {
		return i, nil
	}
	if len(b.chunk.Consts) >= 1<<16 {
		return 0, fmt.Errorf("too many constants in one chunk (max %d)", 1<<16)
	}
	i := uint16(len(b.chunk.Consts))
	b.chunk.Consts = append(b.chunk.Consts, k)
	b.chunk.constIndex[k] = i
	return i, nil
}

// Finish moves the accumulated code into a proto and resets the builder
// for the next body.
func (b *Builder) Finish(p *Proto) {
	p.Code = b.code
	p.Lines = b.lines
	b.code = nil
	b.lines = nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble renders a proto's bytecode one instruction per line, for
// debugging and the compiler's listing output.
func Disassemble(c *Chunk, p *Proto) string {
	var sb strings.Builder
	name := p.Name
	if name == "" {
		name = "<main>"
	}
	fmt.Fprintf(&sb, "%s (arity %d, locals %d):\n", name, p.Arity, p.NumLocals)
	for ip := 0; ip < len(p.Code); {
		op := Opcode(p.Code[ip])
		info, ok := opcodeTable[op]
		if !ok {
			fmt.Fprintf(&sb, "  %04d  ??? (%d)\n", ip, byte(op))
			ip++
			continue
		}
		fmt.Fprintf(&sb, "  %04d  %-14s", ip, info.name)
		switch info.operands {
		case 1:
			fmt.Fprintf(&sb, " %d", p.Code[ip+1])
		case 2:
			arg := uint16(p.Code[ip+1]) | uint16(p.Code[ip+2])<<8
			fmt.Fprintf(&sb, " %d", arg)
			if op == OpPushConst || op == OpGetGlobal || op == OpSetGlobal {
				fmt.Fprintf(&sb, "  ; %s", describeConst(c, int(arg)))
			}
		case 3:
			arg := uint16(p.Code[ip+1]) | uint16(p.Code[ip+2])<<8
			fmt.Fprintf(&sb, " %d %d  ; %s", arg, p.Code[ip+3], describeConst(c, int(arg)))
		}
		sb.WriteByte('\n')
		ip += 1 + info.operands
	}
	return sb.String()
}

func describeConst(c *Chunk, i int) string {
	if i < 0 || i >= len(c.Consts) {
		return "<bad const>"
	}
	k := c.Consts[i]
	switch k.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", k.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", k.Float)
	default:
		return fmt.Sprintf("%q", k.Str)
	}
}
