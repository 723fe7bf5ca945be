package parse

import (
	"fmt"

	"github.com/chazu/esdraft/compiler/ast"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 0x2A, 1.5e3
	TokenString     // 'hello', "hello"
	TokenTemplate   // `a${b}c`
	TokenIdentifier // foo

	// Operators and delimiters; Literal holds the text
	TokenPunct

	// Reserved words
	TokenVar
	TokenLet
	TokenConst
	TokenFunction
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenThrow
	TokenTry
	TokenCatch
	TokenNew
	TokenThis
	TokenTypeof
	TokenVoid
	TokenTrue
	TokenFalse
	TokenNull
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenTemplate:   "TEMPLATE",
	TokenIdentifier: "IDENTIFIER",
	TokenPunct:      "PUNCT",
	TokenVar:        "var",
	TokenLet:        "let",
	TokenConst:      "const",
	TokenFunction:   "function",
	TokenReturn:     "return",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenThrow:      "throw",
	TokenTry:        "try",
	TokenCatch:      "catch",
	TokenNew:        "new",
	TokenThis:       "this",
	TokenTypeof:     "typeof",
	TokenVoid:       "void",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string       // the raw text, or the message for TokenError
	Pos     ast.Position // start position
	End     ast.Position // position after the last character

	// NewlineBefore is set when a line terminator precedes the token.
	NewlineBefore bool

	Number   float64   // TokenNumber
	Str      string    // TokenString, cooked
	Template *template // TokenTemplate
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	case TokenPunct:
		return fmt.Sprintf("%q", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// template holds the pieces of a template literal. Substitutions are kept as
// byte ranges of the input and parsed separately.
type template struct {
	Cooked []string
	Raw    []string
	Subs   []span
}

type span struct {
	start, end int
	pos        ast.Position
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"var":      TokenVar,
	"let":      TokenLet,
	"const":    TokenConst,
	"function": TokenFunction,
	"return":   TokenReturn,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"throw":    TokenThrow,
	"try":      TokenTry,
	"catch":    TokenCatch,
	"new":      TokenNew,
	"this":     TokenThis,
	"typeof":   TokenTypeof,
	"void":     TokenVoid,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
}

// punctuators, longest first.
var punctuators = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||", "=>",
	"(", ")", "{", "}", "[", "]", ";", ",", ".",
	"=", "<", ">", "+", "-", "*", "/", "%", "!",
}
