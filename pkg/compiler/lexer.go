package compiler

import (
	"fmt"
	"strconv"
	"unicode"
)

var keywords = map[string]TokenType{
	"int": INT, "char": CHAR, "short": SHORT, "long": LONG,
	"unsigned": UNSIGNED, "signed": SIGNED, "void": VOID,
	"if": IF, "else": ELSE, "while": WHILE, "return": RETURN,
	"break": BREAK, "continue": CONTINUE, "printf": PRINTF,
}

// Operators are matched longest first.
var (
	twoCharOps = map[string]TokenType{
		"==": EQUALS, "!=": NOT_EQ, "<=": LESS_EQ, ">=": GREATER_EQ,
	}
	oneCharOps = map[rune]TokenType{
		'{': LBRACE, '}': RBRACE, '(': LPAREN, ')': RPAREN, '[': LBRACKET, ']': RBRACKET,
		';': SEMICOLON, ',': COMMA, '=': ASSIGN, '<': LESS, '>': GREATER,
		'+': PLUS, '-': MINUS, '*': STAR, '/': SLASH, '%': PERCENT, '&': AND,
	}
	escapes = map[rune]rune{
		'n': '\n', 'r': '\r', 't': '\t', '0': 0, '\\': '\\', '\'': '\'', '"': '"',
	}
)

type Lexer struct {
	src  []rune
	pos  int
	line int
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1}
}

func (l *Lexer) at(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) done() bool { return l.pos >= len(l.src) }

func (l *Lexer) advance() rune {
	r := l.at(0)
	if !l.done() {
		l.pos++
		if r == '\n' {
			l.line++
		}
	}
	return r
}

// skipBlank skips whitespace and both comment forms.
func (l *Lexer) skipBlank() error {
	for !l.done() {
		switch {
		case unicode.IsSpace(l.at(0)):
			l.advance()
		case l.at(0) == '/' && l.at(1) == '/':
			for !l.done() && l.at(0) != '\n' {
				l.advance()
			}
		case l.at(0) == '/' && l.at(1) == '*':
			opened := l.line
			l.pos += 2
			for !(l.at(0) == '*' && l.at(1) == '/') {
				if l.done() {
					return fmt.Errorf("unterminated block comment (opened on line %d)", opened)
				}
				l.advance()
			}
			l.pos += 2
		default:
			return nil
		}
	}
	return nil
}

func isIdentRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// take consumes runes while ok holds and returns them.
func (l *Lexer) take(ok func(rune) bool) string {
	start := l.pos
	for !l.done() && ok(l.at(0)) {
		l.advance()
	}
	return string(l.src[start:l.pos])
}

func (l *Lexer) scanWord() Token {
	tok := Token{Type: IDENTIFIER, Line: l.line, Lexeme: l.take(isIdentRune)}
	if kw, ok := keywords[tok.Lexeme]; ok {
		tok.Type = kw
	}
	return tok
}

// scanNumber reads a decimal or 0x hex literal. Suffixes are rejected.
func (l *Lexer) scanNumber() (Token, error) {
	line, start := l.line, l.pos
	if l.at(0) == '0' && (l.at(1) == 'x' || l.at(1) == 'X') {
		l.pos += 2
		if l.take(isHexDigit) == "" {
			return Token{}, fmt.Errorf("malformed hex literal on line %d", line)
		}
	} else {
		l.take(unicode.IsDigit)
	}
	if r := l.at(0); unicode.IsLetter(r) || r == '_' {
		return Token{}, fmt.Errorf("invalid suffix %q on integer literal on line %d", r, line)
	}
	return Token{Type: INTEGER, Lexeme: string(l.src[start:l.pos]), Line: line}, nil
}

// scanQuoted reads the body of a char or string literal up to the closing
// quote, decoding escapes.
func (l *Lexer) scanQuoted(quote rune, what string) ([]rune, error) {
	line := l.line
	l.advance()
	var val []rune
	for {
		r := l.advance()
		switch {
		case r == quote:
			return val, nil
		case r == 0 && l.done(), r == '\n':
			return nil, fmt.Errorf("unterminated %s literal on line %d", what, line)
		case r == '\\':
			e := l.advance()
			dec, ok := escapes[e]
			if !ok {
				return nil, fmt.Errorf("unknown escape sequence \\%c on line %d", e, line)
			}
			val = append(val, dec)
		default:
			val = append(val, r)
		}
	}
}

func (l *Lexer) nextToken() (Token, error) {
	if err := l.skipBlank(); err != nil {
		return Token{}, err
	}
	line := l.line
	ch := l.at(0)

	switch {
	case l.done():
		return Token{Type: EOF, Line: line}, nil
	case unicode.IsLetter(ch) || ch == '_':
		return l.scanWord(), nil
	case unicode.IsDigit(ch):
		return l.scanNumber()
	case ch == '"':
		val, err := l.scanQuoted('"', "string")
		return Token{Type: STRING, Lexeme: string(val), Line: line}, err
	case ch == '\'':
		val, err := l.scanQuoted('\'', "character")
		if err != nil {
			return Token{}, err
		}
		if len(val) != 1 {
			return Token{}, fmt.Errorf("character literal must hold exactly one character on line %d", line)
		}
		return Token{Type: CHARACTER, Lexeme: strconv.Itoa(int(val[0])), Line: line}, nil
	}

	if tt, ok := twoCharOps[string([]rune{ch, l.at(1)})]; ok {
		l.pos += 2
		return Token{Type: tt, Lexeme: string([]rune{ch, l.src[l.pos-1]}), Line: line}, nil
	}
	if tt, ok := oneCharOps[ch]; ok {
		l.advance()
		return Token{Type: tt, Lexeme: string(ch), Line: line}, nil
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", ch, line)
}

// Lex tokenizes src. The last token is always EOF unless an error is returned.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
