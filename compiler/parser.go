package compiler

import (
	"fmt"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// parser is a recursive-descent parser with one token of lookahead.
// Expression parsing is stratified by precedence, loosest first:
//
//	assignment  (right associative)
//	||
//	&&
//	== !=
//	<  <=  >  >=
//	..          (concatenation)
//	+  -
//	*  /  %
//	unary -  !
//	calls, indexing, member access
type parser struct {
	lex *lexer
	cur token
}

func parse(src string) ([]stmt, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.bump(); err != nil {
		return nil, err
	}
	var prog []stmt
	for p.cur.kind != tokEOF {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog = append(prog, s)
	}
	return prog, nil
}

func (p *parser) bump() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &vm.SyntaxError{Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	if p.cur.kind != kind {
		return token{}, p.errorf(p.cur, "expected %s, found %s", kind, describeToken(p.cur))
	}
	t := p.cur
	if err := p.bump(); err != nil {
		return token{}, err
	}
	return t, nil
}

func (p *parser) accept(kind tokenKind) (bool, error) {
	if p.cur.kind != kind {
		return false, nil
	}
	return true, p.bump()
}

func describeToken(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokIdent, tokInt, tokFloat:
		return "'" + t.text + "'"
	case tokString:
		return "string literal"
	default:
		return t.kind.String()
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *parser) statement() (stmt, error) {
	switch p.cur.kind {
	case tokVar:
		return p.varDecl()
	case tokLBrace:
		return p.block()
	case tokIf:
		return p.ifStatement()
	case tokWhile:
		return p.whileStatement()
	case tokFor:
		return p.forStatement()
	case tokReturn:
		return p.returnStatement()
	case tokBreak:
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemicolon); err != nil {
			return nil, err
		}
		return &breakStmt{pos: pos{t.line}}, nil
	case tokContinue:
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemicolon); err != nil {
			return nil, err
		}
		return &continueStmt{pos: pos{t.line}}, nil
	case tokFunction:
		return p.functionStatement()
	case tokSemicolon:
		// empty statement
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &blockStmt{pos: pos{t.line}}, nil
	default:
		return p.exprStatement()
	}
}

func (p *parser) varDecl() (stmt, error) {
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	var init expr
	if ok, err := p.accept(tokAssign); err != nil {
		return nil, err
	} else if ok {
		init, err = p.expression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return nil, err
	}
	return &varDeclStmt{pos: pos{t.line}, Name: name.text, Init: init}, nil
}

func (p *parser) block() (*blockStmt, error) {
	t, err := p.expect(tokLBrace)
	if err != nil {
		return nil, err
	}
	b := &blockStmt{pos: pos{t.line}}
	for p.cur.kind != tokRBrace {
		if p.cur.kind == tokEOF {
			return nil, p.errorf(p.cur, "expected '}', found end of input")
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, s)
	}
	if err := p.bump(); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *parser) ifStatement() (stmt, error) {
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	node := &ifStmt{pos: pos{t.line}, Cond: cond, Then: then}
	if ok, err := p.accept(tokElse); err != nil {
		return nil, err
	} else if ok {
		if p.cur.kind == tokIf {
			node.Else, err = p.ifStatement()
		} else {
			node.Else, err = p.block()
		}
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (p *parser) whileStatement() (stmt, error) {
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &whileStmt{pos: pos{t.line}, Cond: cond, Body: body}, nil
}

func (p *parser) forStatement() (stmt, error) {
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	node := &forStmt{pos: pos{t.line}}

	switch p.cur.kind {
	case tokSemicolon:
		if err := p.bump(); err != nil {
			return nil, err
		}
	case tokVar:
		init, err := p.varDecl()
		if err != nil {
			return nil, err
		}
		node.Init = init
	default:
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemicolon); err != nil {
			return nil, err
		}
		node.Init = &exprStmt{pos: pos{x.startLine()}, X: x}
	}

	if p.cur.kind != tokSemicolon {
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		node.Cond = cond
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return nil, err
	}

	if p.cur.kind != tokRParen {
		post, err := p.expression()
		if err != nil {
			return nil, err
		}
		node.Post = post
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}

	body, err := p.block()
	if err != nil {
		return nil, err
	}
	node.Body = body
	return node, nil
}

func (p *parser) returnStatement() (stmt, error) {
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	node := &returnStmt{pos: pos{t.line}}
	if p.cur.kind != tokSemicolon {
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		node.X = x
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return nil, err
	}
	return node, nil
}

// functionStatement parses a named function definition. An anonymous
// function at statement position would be useless, so a name is
// required here; anonymous functions appear in expressions.
func (p *parser) functionStatement() (stmt, error) {
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	fn, err := p.functionRest(t.line, name.text)
	if err != nil {
		return nil, err
	}
	return &funcDeclStmt{pos: pos{t.line}, Name: name.text, Fn: fn}, nil
}

// functionRest parses "(params) { body }".
func (p *parser) functionRest(line int, name string) (*funcLit, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var params []string
	for p.cur.kind != tokRParen {
		id, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		params = append(params, id.text)
		if ok, err := p.accept(tokComma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &funcLit{pos: pos{line}, Name: name, Params: params, Body: body}, nil
}

func (p *parser) exprStatement() (stmt, error) {
	x, err := p.expression()
	if err != nil {
		return nil, err
	}
	// the terminator is optional for the last statement of a program,
	// so bare expressions like "1 + 1" evaluate as-is
	if p.cur.kind != tokEOF {
		if _, err := p.expect(tokSemicolon); err != nil {
			return nil, err
		}
	}
	return &exprStmt{pos: pos{x.startLine()}, X: x}, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *parser) expression() (expr, error) {
	return p.assignment()
}

func (p *parser) assignment() (expr, error) {
	left, err := p.logicalOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokAssign {
		return left, nil
	}
	t := p.cur
	if err := p.bump(); err != nil {
		return nil, err
	}
	value, err := p.assignment()
	if err != nil {
		return nil, err
	}
	// lvalue-ness is checked during code generation
	return &assignExpr{pos: pos{t.line}, Target: left, Value: value}, nil
}

func (p *parser) binaryLevel(ops []tokenKind, next func() (expr, error)) (expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, op := range ops {
			if p.cur.kind == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: pos{t.line}, Op: t.kind, X: left, Y: right}
	}
}

func (p *parser) logicalOr() (expr, error) {
	left, err := p.logicalAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOrOr {
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		right, err := p.logicalAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{pos: pos{t.line}, Op: tokOrOr, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) logicalAnd() (expr, error) {
	left, err := p.equality()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAndAnd {
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		right, err := p.equality()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{pos: pos{t.line}, Op: tokAndAnd, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) equality() (expr, error) {
	return p.binaryLevel([]tokenKind{tokEq, tokNe}, p.relational)
}

func (p *parser) relational() (expr, error) {
	return p.binaryLevel([]tokenKind{tokLt, tokLe, tokGt, tokGe}, p.concat)
}

func (p *parser) concat() (expr, error) {
	return p.binaryLevel([]tokenKind{tokDotDot}, p.additive)
}

func (p *parser) additive() (expr, error) {
	return p.binaryLevel([]tokenKind{tokPlus, tokMinus}, p.multiplicative)
}

func (p *parser) multiplicative() (expr, error) {
	return p.binaryLevel([]tokenKind{tokStar, tokSlash, tokPercent}, p.unary)
}

func (p *parser) unary() (expr, error) {
	if p.cur.kind == tokMinus || p.cur.kind == tokBang {
		t := p.cur
		if err := p.bump(); err != nil {
			return nil, err
		}
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: pos{t.line}, Op: t.kind, X: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.kind {
		case tokLParen:
			t := p.cur
			args, err := p.argList()
			if err != nil {
				return nil, err
			}
			if m, ok := x.(*memberExpr); ok {
				x = &methodCallExpr{pos: pos{t.line}, Recv: m.X, Name: m.Name, Args: args}
			} else {
				x = &callExpr{pos: pos{t.line}, Callee: x, Args: args}
			}
		case tokLBracket:
			t := p.cur
			if err := p.bump(); err != nil {
				return nil, err
			}
			key, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			x = &indexExpr{pos: pos{t.line}, X: x, Key: key}
		case tokDot:
			t := p.cur
			if err := p.bump(); err != nil {
				return nil, err
			}
			name, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			x = &memberExpr{pos: pos{t.line}, X: x, Name: name.text}
		default:
			return x, nil
		}
	}
}

func (p *parser) argList() ([]expr, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var args []expr
	for p.cur.kind != tokRParen {
		a, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if ok, err := p.accept(tokComma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) primary() (expr, error) {
	t := p.cur
	switch t.kind {
	case tokNil:
		return &nilLit{pos{t.line}}, p.bump()
	case tokTrue:
		return &boolLit{pos: pos{t.line}, Val: true}, p.bump()
	case tokFalse:
		return &boolLit{pos: pos{t.line}, Val: false}, p.bump()
	case tokInt:
		return &intLit{pos: pos{t.line}, Val: t.intVal}, p.bump()
	case tokFloat:
		return &floatLit{pos: pos{t.line}, Val: t.floatVal}, p.bump()
	case tokString:
		return &stringLit{pos: pos{t.line}, Val: t.strVal}, p.bump()
	case tokIdent:
		return &identExpr{pos: pos{t.line}, Name: t.text}, p.bump()

	case tokLParen:
		if err := p.bump(); err != nil {
			return nil, err
		}
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil

	case tokLBracket:
		if err := p.bump(); err != nil {
			return nil, err
		}
		lit := &arrayLit{pos: pos{t.line}}
		for p.cur.kind != tokRBracket {
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			lit.Elems = append(lit.Elems, e)
			if ok, err := p.accept(tokComma); err != nil {
				return nil, err
			} else if !ok {
				break
			}
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		return lit, nil

	case tokLBrace:
		if err := p.bump(); err != nil {
			return nil, err
		}
		lit := &mapLit{pos: pos{t.line}}
		for p.cur.kind != tokRBrace {
			var key expr
			// bare identifiers on the key side are string keys
			if p.cur.kind == tokIdent {
				key = &stringLit{pos: pos{p.cur.line}, Val: p.cur.text}
				if err := p.bump(); err != nil {
					return nil, err
				}
			} else {
				k, err := p.expression()
				if err != nil {
					return nil, err
				}
				key = k
			}
			if _, err := p.expect(tokColon); err != nil {
				return nil, err
			}
			val, err := p.expression()
			if err != nil {
				return nil, err
			}
			lit.Keys = append(lit.Keys, key)
			lit.Vals = append(lit.Vals, val)
			if ok, err := p.accept(tokComma); err != nil {
				return nil, err
			} else if !ok {
				break
			}
		}
		if _, err := p.expect(tokRBrace); err != nil {
			return nil, err
		}
		return lit, nil

	case tokFunction:
		if err := p.bump(); err != nil {
			return nil, err
		}
		name := ""
		if p.cur.kind == tokIdent {
			name = p.cur.text
			if err := p.bump(); err != nil {
				return nil, err
			}
		}
		return p.functionRest(t.line, name)
	}
	return nil, p.errorf(t, "expected an expression, found %s", describeToken(t))
}
