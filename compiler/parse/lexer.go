package parse

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/esdraft/compiler/ast"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for the supported script subset
// ---------------------------------------------------------------------------

// Lexer tokenizes script source code.
type Lexer struct {
	input     string
	pos       int  // offset of ch
	readPos   int  // offset after ch
	limit     int  // offset treated as end of input
	ch        rune // current character, 0 at EOF
	line      int  // line of ch (1-based)
	lineStart int  // offset of the start of ch's line
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return newLexerRange(input, 0, len(input), ast.Position{Line: 1, Column: 1})
}

// newLexerRange lexes input[start:end]; at is the position of start.
func newLexerRange(input string, start, end int, at ast.Position) *Lexer {
	l := &Lexer{
		input:     input,
		readPos:   start,
		limit:     end,
		line:      at.Line,
		lineStart: start - (at.Column - 1),
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.lineStart = l.readPos
	}
	if l.readPos >= l.limit {
		l.ch = 0
		l.pos = l.limit
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= l.limit {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() ast.Position {
	return ast.Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.pos - l.lineStart + 1,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	newline, err := l.skipWhitespaceAndComments()
	pos := l.position()
	var tok Token
	if err != "" {
		tok = Token{Type: TokenError, Literal: err, Pos: pos}
	} else {
		tok = l.scan(pos)
	}
	tok.End = l.position()
	tok.NewlineBefore = newline
	return tok
}

func (l *Lexer) scan(pos ast.Position) Token {
	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(pos)

	case l.ch == '\'' || l.ch == '"':
		return l.readString(pos)

	case l.ch == '`':
		return l.readTemplate(pos)

	case isIdentStart(l.ch):
		return l.readIdentifier(pos)
	}

	rest := l.input[l.pos:l.limit]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			for range p {
				l.readChar()
			}
			return Token{Type: TokenPunct, Literal: p, Pos: pos}
		}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == 0x2028 || r == 0x2029
}

// skipWhitespaceAndComments skips whitespace and comments, reporting whether
// a line terminator was crossed.
func (l *Lexer) skipWhitespaceAndComments() (newline bool, err string) {
	for {
		switch {
		case isLineTerminator(l.ch):
			newline = true
			l.readChar()
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\v' || l.ch == '\f' || l.ch == 0xA0 || l.ch == 0xFEFF:
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != 0 && !isLineTerminator(l.ch) {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.ch == 0 {
					return newline, "unterminated comment"
				}
				if isLineTerminator(l.ch) {
					newline = true
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return newline, ""
		}
	}
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos ast.Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := reservedWords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

// readNumber reads a decimal, hex, octal or binary numeric literal.
func (l *Lexer) readNumber(pos ast.Position) Token {
	start := l.pos
	if l.ch == '0' {
		base := 0
		switch l.peekChar() {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			l.readChar()
			l.readChar()
			digits := l.pos
			for isHexDigit(l.ch) {
				l.readChar()
			}
			lit := l.input[start:l.pos]
			n, ok := new(big.Int).SetString(l.input[digits:l.pos], base)
			if !ok {
				return Token{Type: TokenError, Literal: "invalid number " + lit, Pos: pos}
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return l.endNumber(Token{Type: TokenNumber, Literal: lit, Pos: pos, Number: f})
		}
	}

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return Token{Type: TokenError, Literal: "missing exponent", Pos: pos}
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	lit := l.input[start:l.pos]
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Token{Type: TokenError, Literal: "invalid number " + lit, Pos: pos}
	}
	return l.endNumber(Token{Type: TokenNumber, Literal: lit, Pos: pos, Number: f})
}

func (l *Lexer) endNumber(tok Token) Token {
	if isIdentStart(l.ch) {
		return Token{Type: TokenError, Literal: "identifier starts immediately after numeric literal", Pos: tok.Pos}
	}
	return tok
}

// readString reads a single- or double-quoted string.
func (l *Lexer) readString(pos ast.Position) Token {
	quote := l.ch
	start := l.pos
	l.readChar()
	body := l.pos
	for l.ch != quote {
		switch {
		case l.ch == 0 || l.ch == '\n' || l.ch == '\r':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case l.ch == '\\':
			l.readChar()
			if l.ch == '\r' && l.peekChar() == '\n' {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
			}
		default:
			l.readChar()
		}
	}
	raw := l.input[body:l.pos]
	l.readChar()
	s, err := cook(raw)
	if err != nil {
		return Token{Type: TokenError, Literal: err.Error(), Pos: pos}
	}
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Pos: pos, Str: s}
}

// readTemplate reads a template literal. Substitutions are skipped by
// brace matching and parsed later.
func (l *Lexer) readTemplate(pos ast.Position) Token {
	start := l.pos
	l.readChar()
	t := &template{}
	segment := l.pos
	add := func(raw string) error {
		cooked, err := cook(raw)
		if err != nil {
			return err
		}
		t.Cooked = append(t.Cooked, cooked)
		t.Raw = append(t.Raw, raw)
		return nil
	}
	for {
		switch {
		case l.ch == 0:
			return Token{Type: TokenError, Literal: "unterminated template", Pos: pos}

		case l.ch == '\\':
			l.readChar()
			if l.ch != 0 {
				l.readChar()
			}

		case l.ch == '`':
			if err := add(l.input[segment:l.pos]); err != nil {
				return Token{Type: TokenError, Literal: err.Error(), Pos: pos}
			}
			l.readChar()
			return Token{Type: TokenTemplate, Literal: l.input[start:l.pos], Pos: pos, Template: t}

		case l.ch == '$' && l.peekChar() == '{':
			if err := add(l.input[segment:l.pos]); err != nil {
				return Token{Type: TokenError, Literal: err.Error(), Pos: pos}
			}
			l.readChar()
			l.readChar()
			sub := span{start: l.pos, pos: l.position()}
			if !l.skipBalanced() {
				return Token{Type: TokenError, Literal: "unterminated template substitution", Pos: pos}
			}
			sub.end = l.pos
			t.Subs = append(t.Subs, sub)
			l.readChar()
			segment = l.pos

		default:
			l.readChar()
		}
	}
}

// skipBalanced advances to the '}' closing the current substitution.
func (l *Lexer) skipBalanced() bool {
	depth := 0
	for {
		switch {
		case l.ch == 0:
			return false
		case l.ch == '{':
			depth++
			l.readChar()
		case l.ch == '}':
			if depth == 0 {
				return true
			}
			depth--
			l.readChar()
		case l.ch == '\'' || l.ch == '"':
			quote := l.ch
			l.readChar()
			for l.ch != quote {
				if l.ch == 0 {
					return false
				}
				if l.ch == '\\' {
					l.readChar()
				}
				l.readChar()
			}
			l.readChar()
		case l.ch == '`':
			l.readChar()
			for l.ch != '`' {
				switch {
				case l.ch == 0:
					return false
				case l.ch == '\\':
					l.readChar()
					l.readChar()
				case l.ch == '$' && l.peekChar() == '{':
					l.readChar()
					l.readChar()
					if !l.skipBalanced() {
						return false
					}
					l.readChar()
				default:
					l.readChar()
				}
			}
			l.readChar()
		case l.ch == '/' && (l.peekChar() == '/' || l.peekChar() == '*'):
			if _, err := l.skipWhitespaceAndComments(); err != "" {
				return false
			}
		default:
			l.readChar()
		}
	}
}

// cook resolves the escape sequences of a string or template segment.
func cook(raw string) (string, error) {
	if !strings.Contains(raw, "\\") {
		return raw, nil
	}
	var sb strings.Builder
	for i := 0; i < len(raw); {
		c := raw[i]
		if c != '\\' {
			sb.WriteByte(c)
			i++
			continue
		}
		i++
		if i >= len(raw) {
			return "", errors.New("invalid escape sequence")
		}
		c = raw[i]
		i++
		switch c {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			if i < len(raw) && isDigit(rune(raw[i])) {
				return "", errors.New("octal escape sequences are not allowed")
			}
			sb.WriteByte(0)
		case '\r':
			if i < len(raw) && raw[i] == '\n' {
				i++
			}
		case '\n':
		case 'x':
			if i+2 > len(raw) {
				return "", errors.New("invalid hexadecimal escape sequence")
			}
			v, err := strconv.ParseUint(raw[i:i+2], 16, 8)
			if err != nil {
				return "", errors.New("invalid hexadecimal escape sequence")
			}
			sb.WriteRune(rune(v))
			i += 2
		case 'u':
			r, n, err := unicodeEscape(raw[i:])
			if err != nil {
				return "", err
			}
			i += n
			if utf16IsHigh(r) && strings.HasPrefix(raw[i:], "\\u") {
				if lo, m, err := unicodeEscape(raw[i+2:]); err == nil && utf16IsLow(lo) {
					r = (r-0xD800)<<10 + (lo - 0xDC00) + 0x10000
					i += 2 + m
				}
			}
			sb.WriteRune(r)
		default:
			if c >= '1' && c <= '9' {
				return "", errors.New("octal escape sequences are not allowed")
			}
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

// unicodeEscape decodes the part of a \u escape after the 'u'.
func unicodeEscape(s string) (rune, int, error) {
	bad := errors.New("invalid Unicode escape sequence")
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 {
			return 0, 0, bad
		}
		v, err := strconv.ParseUint(s[1:end], 16, 32)
		if err != nil || v > unicode.MaxRune {
			return 0, 0, bad
		}
		return rune(v), end + 1, nil
	}
	if len(s) < 4 {
		return 0, 0, bad
	}
	v, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, 0, bad
	}
	return rune(v), 4, nil
}

func utf16IsHigh(r rune) bool { return r >= 0xD800 && r < 0xDC00 }
func utf16IsLow(r rune) bool  { return r >= 0xDC00 && r < 0xE000 }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
