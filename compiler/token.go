package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokError

	// literals
	tokInt
	tokFloat
	tokString
	tokIdent

	// keywords
	tokVar
	tokIf
	tokElse
	tokWhile
	tokFor
	tokReturn
	tokBreak
	tokContinue
	tokFunction
	tokNil
	tokTrue
	tokFalse

	// punctuation and operators
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
	tokSemicolon
	tokColon
	tokDot
	tokDotDot

	tokAssign
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokBang

	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokAndAnd
	tokOrOr
)

var tokenNames = map[tokenKind]string{
	tokEOF:       "end of input",
	tokError:     "error",
	tokInt:       "integer literal",
	tokFloat:     "float literal",
	tokString:    "string literal",
	tokIdent:     "identifier",
	tokVar:       "'var'",
	tokIf:        "'if'",
	tokElse:      "'else'",
	tokWhile:     "'while'",
	tokFor:       "'for'",
	tokReturn:    "'return'",
	tokBreak:     "'break'",
	tokContinue:  "'continue'",
	tokFunction:  "'function'",
	tokNil:       "'nil'",
	tokTrue:      "'true'",
	tokFalse:     "'false'",
	tokLParen:    "'('",
	tokRParen:    "')'",
	tokLBrace:    "'{'",
	tokRBrace:    "'}'",
	tokLBracket:  "'['",
	tokRBracket:  "']'",
	tokComma:     "','",
	tokSemicolon: "';'",
	tokColon:     "':'",
	tokDot:       "'.'",
	tokDotDot:    "'..'",
	tokAssign:    "'='",
	tokPlus:      "'+'",
	tokMinus:     "'-'",
	tokStar:      "'*'",
	tokSlash:     "'/'",
	tokPercent:   "'%'",
	tokBang:      "'!'",
	tokEq:        "'=='",
	tokNe:        "'!='",
	tokLt:        "'<'",
	tokLe:        "'<='",
	tokGt:        "'>'",
	tokGe:        "'>='",
	tokAndAnd:    "'&&'",
	tokOrOr:      "'||'",
}

var keywords = map[string]tokenKind{
	"var":      tokVar,
	"if":       tokIf,
	"else":     tokElse,
	"while":    tokWhile,
	"for":      tokFor,
	"return":   tokReturn,
	"break":    tokBreak,
	"continue": tokContinue,
	"function": tokFunction,
	"nil":      tokNil,
	"true":     tokTrue,
	"false":    tokFalse,
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", uint8(k))
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int

	intVal   int64
	floatVal float64
	strVal   string
}
