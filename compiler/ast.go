package compiler

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

type expr interface {
	exprNode()
	startLine() int
}

type stmt interface {
	stmtNode()
	startLine() int
}

type pos struct {
	Line int
}

func (p pos) startLine() int { return p.Line }

// --- expressions ---

type nilLit struct{ pos }

type boolLit struct {
	pos
	Val bool
}

type intLit struct {
	pos
	Val int64
}

type floatLit struct {
	pos
	Val float64
}

type stringLit struct {
	pos
	Val string
}

type identExpr struct {
	pos
	Name string
}

type unaryExpr struct {
	pos
	Op tokenKind // tokMinus, tokBang
	X  expr
}

type binaryExpr struct {
	pos
	Op   tokenKind
	X, Y expr
}

// logicalExpr short-circuits; it is separate from binaryExpr because
// the right operand may never be evaluated.
type logicalExpr struct {
	pos
	Op   tokenKind // tokAndAnd, tokOrOr
	X, Y expr
}

type assignExpr struct {
	pos
	Target expr // identExpr, indexExpr or memberExpr
	Value  expr
}

type indexExpr struct {
	pos
	X   expr
	Key expr
}

// memberExpr is sugar: a.b reads and writes a["b"], except as the
// callee of a call, where it dispatches a method.
type memberExpr struct {
	pos
	X    expr
	Name string
}

type callExpr struct {
	pos
	Callee expr
	Args   []expr
}

type methodCallExpr struct {
	pos
	Recv expr
	Name string
	Args []expr
}

type arrayLit struct {
	pos
	Elems []expr
}

type mapLit struct {
	pos
	Keys []expr
	Vals []expr
}

type funcLit struct {
	pos
	Name   string // empty for lambdas
	Params []string
	Body   *blockStmt
}

func (*nilLit) exprNode()         {}
func (*boolLit) exprNode()        {}
func (*intLit) exprNode()         {}
func (*floatLit) exprNode()       {}
func (*stringLit) exprNode()      {}
func (*identExpr) exprNode()      {}
func (*unaryExpr) exprNode()      {}
func (*binaryExpr) exprNode()     {}
func (*logicalExpr) exprNode()    {}
func (*assignExpr) exprNode()     {}
func (*indexExpr) exprNode()      {}
func (*memberExpr) exprNode()     {}
func (*callExpr) exprNode()       {}
func (*methodCallExpr) exprNode() {}
func (*arrayLit) exprNode()       {}
func (*mapLit) exprNode()         {}
func (*funcLit) exprNode()        {}

// --- statements ---

type varDeclStmt struct {
	pos
	Name string
	Init expr // nil means initialize to nil
}

type exprStmt struct {
	pos
	X expr
}

type blockStmt struct {
	pos
	Stmts []stmt
}

type ifStmt struct {
	pos
	Cond expr
	Then *blockStmt
	Else stmt // *blockStmt, *ifStmt or nil
}

type whileStmt struct {
	pos
	Cond expr
	Body *blockStmt
}

type forStmt struct {
	pos
	Init stmt // *varDeclStmt, *exprStmt or nil
	Cond expr // nil means always true
	Post expr // nil for no increment
	Body *blockStmt
}

type returnStmt struct {
	pos
	X expr // nil returns nil
}

type breakStmt struct{ pos }

type continueStmt struct{ pos }

// funcDeclStmt defines a named function: a local where declared inside
// a block, a global at the top level.
type funcDeclStmt struct {
	pos
	Name string
	Fn   *funcLit
}

func (*varDeclStmt) stmtNode()  {}
func (*exprStmt) stmtNode()     {}
func (*blockStmt) stmtNode()    {}
func (*ifStmt) stmtNode()       {}
func (*whileStmt) stmtNode()    {}
func (*forStmt) stmtNode()      {}
func (*returnStmt) stmtNode()   {}
func (*breakStmt) stmtNode()    {}
func (*continueStmt) stmtNode() {}
func (*funcDeclStmt) stmtNode() {}
