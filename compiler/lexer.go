package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(line, col int, format string, args ...any) *vm.SyntaxError {
	return &vm.SyntaxError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) atEOF() bool {
	return l.pos >= len(l.src)
}

func (l *lexer) peekByte() byte {
	if l.atEOF() {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() byte {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *lexer) skipSpaceAndComments() error {
	for !l.atEOF() {
		switch ch := l.peekByte(); {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekAt(1) == '/':
			for !l.atEOF() && l.peekByte() != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekAt(1) == '*':
			line, col := l.line, l.col
			l.advance()
			l.advance()
			for {
				if l.atEOF() {
					return l.errorf(line, col, "unterminated block comment")
				}
				if l.peekByte() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

// next scans the next token. Lexical failures come back as Go errors of
// type *vm.SyntaxError.
func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	line, col := l.line, l.col
	if l.atEOF() {
		return token{kind: tokEOF, line: line, col: col}, nil
	}

	ch := l.advance()
	mk := func(kind tokenKind, text string) token {
		return token{kind: kind, text: text, line: line, col: col}
	}
	two := func(second byte, both, single tokenKind) token {
		if l.peekByte() == second {
			l.advance()
			return mk(both, string([]byte{ch, second}))
		}
		return mk(single, string(ch))
	}

	switch {
	case isIdentStart(ch):
		start := l.pos - 1
		for !l.atEOF() && isIdentPart(l.peekByte()) {
			l.advance()
		}
		word := l.src[start:l.pos]
		if kw, ok := keywords[word]; ok {
			return mk(kw, word), nil
		}
		return mk(tokIdent, word), nil

	case isDigit(ch):
		return l.scanNumber(line, col)

	case ch == '"':
		return l.scanString(line, col)
	}

	switch ch {
	case '(':
		return mk(tokLParen, "("), nil
	case ')':
		return mk(tokRParen, ")"), nil
	case '{':
		return mk(tokLBrace, "{"), nil
	case '}':
		return mk(tokRBrace, "}"), nil
	case '[':
		return mk(tokLBracket, "["), nil
	case ']':
		return mk(tokRBracket, "]"), nil
	case ',':
		return mk(tokComma, ","), nil
	case ';':
		return mk(tokSemicolon, ";"), nil
	case ':':
		return mk(tokColon, ":"), nil
	case '.':
		if l.peekByte() == '.' {
			l.advance()
			return mk(tokDotDot, ".."), nil
		}
		return mk(tokDot, "."), nil
	case '+':
		return mk(tokPlus, "+"), nil
	case '-':
		return mk(tokMinus, "-"), nil
	case '*':
		return mk(tokStar, "*"), nil
	case '/':
		return mk(tokSlash, "/"), nil
	case '%':
		return mk(tokPercent, "%"), nil
	case '=':
		return two('=', tokEq, tokAssign), nil
	case '!':
		return two('=', tokNe, tokBang), nil
	case '<':
		return two('=', tokLe, tokLt), nil
	case '>':
		return two('=', tokGe, tokGt), nil
	case '&':
		if l.peekByte() == '&' {
			l.advance()
			return mk(tokAndAnd, "&&"), nil
		}
		return token{}, l.errorf(line, col, "unexpected character '&'")
	case '|':
		if l.peekByte() == '|' {
			l.advance()
			return mk(tokOrOr, "||"), nil
		}
		return token{}, l.errorf(line, col, "unexpected character '|'")
	}
	return token{}, l.errorf(line, col, "unexpected character %q", ch)
}

func (l *lexer) scanNumber(line, col int) (token, error) {
	start := l.pos - 1

	// hex
	if l.src[start] == '0' && (l.peekByte() == 'x' || l.peekByte() == 'X') {
		l.advance()
		digits := 0
		for !l.atEOF() && isHexDigit(l.peekByte()) {
			l.advance()
			digits++
		}
		if digits == 0 {
			return token{}, l.errorf(line, col, "malformed hexadecimal literal")
		}
		n, err := strconv.ParseUint(l.src[start+2:l.pos], 16, 64)
		if err != nil {
			return token{}, l.errorf(line, col, "hexadecimal literal out of range")
		}
		return token{kind: tokInt, text: l.src[start:l.pos], line: line, col: col, intVal: int64(n)}, nil
	}

	isFloat := false
	for !l.atEOF() && isDigit(l.peekByte()) {
		l.advance()
	}
	if l.peekByte() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		for !l.atEOF() && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		save := l.pos
		l.advance()
		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.advance()
		}
		if isDigit(l.peekByte()) {
			isFloat = true
			for !l.atEOF() && isDigit(l.peekByte()) {
				l.advance()
			}
		} else {
			l.pos = save
		}
	}

	text := l.src[start:l.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, l.errorf(line, col, "malformed float literal %q", text)
		}
		return token{kind: tokFloat, text: text, line: line, col: col, floatVal: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, l.errorf(line, col, "integer literal %q out of range", text)
	}
	return token{kind: tokInt, text: text, line: line, col: col, intVal: n}, nil
}

func (l *lexer) scanString(line, col int) (token, error) {
	var sb strings.Builder
	for {
		if l.atEOF() {
			return token{}, l.errorf(line, col, "unterminated string literal")
		}
		ch := l.advance()
		if ch == '"' {
			break
		}
		if ch == '\n' {
			return token{}, l.errorf(line, col, "newline in string literal")
		}
		if ch != '\\' {
			sb.WriteByte(ch)
			continue
		}
		if l.atEOF() {
			return token{}, l.errorf(line, col, "unterminated string literal")
		}
		esc := l.advance()
		switch esc {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case '\\':
			sb.WriteByte('\\')
		case '"':
			sb.WriteByte('"')
		case '\'':
			sb.WriteByte('\'')
		case 'x':
			if !isHexDigit(l.peekByte()) || !isHexDigit(l.peekAt(1)) {
				return token{}, l.errorf(l.line, l.col, "malformed \\x escape")
			}
			hi := hexVal(l.advance())
			lo := hexVal(l.advance())
			sb.WriteByte(byte(hi<<4 | lo))
		default:
			return token{}, l.errorf(l.line, l.col, "unknown escape sequence '\\%c'", esc)
		}
	}
	return token{kind: tokString, text: sb.String(), line: line, col: col, strVal: sb.String()}, nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func hexVal(ch byte) int {
	switch {
	case ch <= '9':
		return int(ch - '0')
	case ch <= 'F':
		return int(ch-'A') + 10
	default:
		return int(ch-'a') + 10
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
